package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/usher/pkg/audit"
	"github.com/platinummonkey/usher/pkg/httputil"
	"github.com/platinummonkey/usher/pkg/observability"
	"github.com/platinummonkey/usher/pkg/storage"
)

// maxLogoBytes caps a single logo upload.
const maxLogoBytes = 5 << 20

var allowedLogoTypes = map[string]bool{
	"image/png":     true,
	"image/jpeg":    true,
	"image/gif":     true,
	"image/svg+xml": true,
	"image/webp":    true,
}

// BrandingHandlers serves enterprise branding assets. Uploads are operator
// actions; the logo itself is public because login pages embed it.
type BrandingHandlers struct {
	assets    storage.AssetStore
	directory EnterpriseDirectory

	operatorAuth func(http.Handler) http.Handler
}

// NewBrandingHandlers creates a new BrandingHandlers.
func NewBrandingHandlers(assets storage.AssetStore, directory EnterpriseDirectory,
	operatorAuth func(http.Handler) http.Handler) *BrandingHandlers {
	return &BrandingHandlers{
		assets:       assets,
		directory:    directory,
		operatorAuth: orPassthrough(operatorAuth),
	}
}

// RegisterRoutes registers branding routes.
func (h *BrandingHandlers) RegisterRoutes(router *mux.Router) {
	operator := router.NewRoute().Subrouter()
	operator.Use(h.operatorAuth)
	operator.HandleFunc("/enterprises/{id}/branding/logo", h.UploadLogo).Methods("POST")

	router.HandleFunc("/enterprises/{id}/branding/logo", h.ServeLogo).Methods("GET")
}

// UploadLogo handles POST /enterprises/{id}/branding/logo. The logo comes
// either as the multipart field "logo" or as a raw image body.
func (h *BrandingHandlers) UploadLogo(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.directory.Get(r.Context(), id.String()); err != nil {
		writeServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLogoBytes)

	content, contentType, ok := logoContent(w, r)
	if !ok {
		return
	}
	defer content.Close()

	key := logoKey(id.String())
	if err := h.assets.Put(r.Context(), key, content, contentType); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("enterprise_id", id.String()).Error("Failed to store logo")
		httputil.WriteInternalError(w, err)
		return
	}

	event := audit.Success(r.Context(), audit.EventTypeBrandingUpdated, id.String(), "logo uploaded")
	event.Metadata["content_type"] = contentType
	recordAudit(r, event)

	httputil.WriteCreated(w, map[string]string{"logo_url": h.assets.URL(key)})
}

// ServeLogo handles GET /enterprises/{id}/branding/logo.
func (h *BrandingHandlers) ServeLogo(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	content, contentType, err := h.assets.Get(r.Context(), logoKey(id.String()))
	if err != nil {
		if errors.Is(err, storage.ErrAssetNotFound) {
			httputil.WriteNotFoundError(w, "no logo uploaded for this enterprise")
			return
		}
		observability.FromContext(r.Context()).WithError(err).
			WithField("enterprise_id", id.String()).Error("Failed to read logo")
		httputil.WriteInternalError(w, err)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := io.Copy(w, content); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("Logo stream interrupted")
	}
}

// logoContent extracts the upload body and validates its media type.
func logoContent(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, bool) {
	requestType := r.Header.Get("Content-Type")

	if strings.HasPrefix(requestType, "multipart/form-data") {
		file, header, err := r.FormFile("logo")
		if err != nil {
			httputil.WriteBadRequest(w, "multipart field \"logo\" is required")
			return nil, "", false
		}
		contentType := header.Header.Get("Content-Type")
		if !allowedLogoType(contentType) {
			file.Close()
			httputil.WriteValidationError(w, fmt.Sprintf("unsupported logo content type %q", contentType))
			return nil, "", false
		}
		return file, contentType, true
	}

	if !allowedLogoType(requestType) {
		httputil.WriteValidationError(w, fmt.Sprintf("unsupported logo content type %q", requestType))
		return nil, "", false
	}
	return r.Body, requestType, true
}

func allowedLogoType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return allowedLogoTypes[mediaType]
}

func logoKey(enterpriseID string) string {
	return fmt.Sprintf("branding/%s/logo", enterpriseID)
}
