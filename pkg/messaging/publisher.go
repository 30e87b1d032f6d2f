package messaging

import (
	"context"
	"errors"
	"fmt"
)

// Publisher delivers notifications to a named stream. A nil return means the
// broker accepted the entry, nothing more.
type Publisher interface {
	Publish(ctx context.Context, stream string, payload []byte) error
}

// PublishError reports a failed publish to a named stream.
type PublishError struct {
	Stream string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish to stream %s: %v", e.Stream, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsPublishFailure reports whether err is a publish failure.
func IsPublishFailure(err error) bool {
	var p *PublishError
	return errors.As(err, &p)
}
