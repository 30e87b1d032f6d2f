package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemStore implements the AssetStore interface using the local filesystem
type FilesystemStore struct {
	rootDir string
}

// NewFilesystemStore creates a new filesystem-based asset store
func NewFilesystemStore(rootDir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FilesystemStore{rootDir: rootDir}, nil
}

// assetMeta is the sidecar metadata written next to each asset
type assetMeta struct {
	ContentType string `json:"content_type"`
}

// assetPath resolves a key under the root, rejecting traversal
func (s *FilesystemStore) assetPath(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid asset key: %q", key)
	}
	return filepath.Join(s.rootDir, filepath.FromSlash(key)), nil
}

// Put implements AssetStore.Put
func (s *FilesystemStore) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	path, err := s.assetPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create asset file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write asset file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close asset file: %w", err)
	}

	meta, err := json.Marshal(assetMeta{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to marshal asset metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", meta, 0644); err != nil {
		return fmt.Errorf("failed to write asset metadata: %w", err)
	}

	return nil
}

// Get implements AssetStore.Get
func (s *FilesystemStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.assetPath(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrAssetNotFound
		}
		return nil, "", fmt.Errorf("failed to open asset file: %w", err)
	}

	contentType := "application/octet-stream"
	if data, err := os.ReadFile(path + ".meta"); err == nil {
		var meta assetMeta
		if err := json.Unmarshal(data, &meta); err == nil && meta.ContentType != "" {
			contentType = meta.ContentType
		}
	}

	return f, contentType, nil
}

// Delete implements AssetStore.Delete. Deleting an absent key is not an error.
func (s *FilesystemStore) Delete(ctx context.Context, key string) error {
	path, err := s.assetPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove asset file: %w", err)
	}
	if err := os.Remove(path + ".meta"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove asset metadata: %w", err)
	}

	return nil
}

// URL implements AssetStore.URL. Filesystem assets are served through the API.
func (s *FilesystemStore) URL(key string) string {
	return "/api/v1/assets/" + key
}

// HealthCheck implements AssetStore.HealthCheck
func (s *FilesystemStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.rootDir)
	if err != nil {
		return fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("asset root %s is not a directory", s.rootDir)
	}
	return nil
}
