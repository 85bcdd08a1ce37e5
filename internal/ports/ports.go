package ports

import (
	"context"
	"fmt"
	"net/http"

	"ChannelRelay/internal/domain"
)

// MessageSource pulls recent posts from one source channel.
type MessageSource interface {
	Recent(ctx context.Context, channel string, limit int) ([]domain.SourceMessage, error)
}

// MediaFetcher stores the attachment of a message as a local file and returns its path.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, msg domain.SourceMessage, dir string) (string, error)
}

// GenerateRequest is a single call to a generative-text backend with one credential.
type GenerateRequest struct {
	APIKey      string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator performs one completion call. Failures carrying an HTTP status are *StatusError.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Destination publishes a post to one target and returns the reference id it was given.
type Destination interface {
	Name() string
	Publish(ctx context.Context, post domain.Post) (string, error)
}

// HistoryRepository remembers which source messages were already published.
type HistoryRepository interface {
	AlreadyPublished(ctx context.Context, keys []string) (map[string]bool, error)
	SavePublished(ctx context.Context, rec domain.PublishedRecord) error
}

// Pacer spaces consecutive calls to external services.
type Pacer interface {
	Wait(ctx context.Context) error
}

// StatusError is returned by adapters when the remote side answered with a non-success status.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// RotatesCredential reports whether the credential used for the call must be blocked.
func (e *StatusError) RotatesCredential() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// Temporary reports whether repeating the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= http.StatusInternalServerError
}

// PartialDeliveryError is returned when the first part of a post reached the destination and a
// later part failed. Repeating the call would post the delivered part again.
type PartialDeliveryError struct {
	Service   string
	Reference string
	Err       error
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("%s delivered message %s, then failed: %v", e.Service, e.Reference, e.Err)
}

func (e *PartialDeliveryError) Unwrap() error {
	return e.Err
}
