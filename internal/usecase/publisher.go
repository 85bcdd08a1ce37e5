package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/observability"
	"ChannelRelay/internal/ports"
)

// PublisherDeps wires destination adapters by target kind.
type PublisherDeps struct {
	Destinations map[domain.TargetKind]ports.Destination
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	Attempts     int
	Backoff      time.Duration
	Sleep        func(ctx context.Context, d time.Duration) bool
	// Remove deletes the local media file; defaults to os.Remove.
	Remove func(path string) error
}

// Delivery is the content produced for one run, one text per format.
type Delivery struct {
	Texts     map[domain.Format]string
	MediaPath string
	MediaKind domain.MediaKind
}

// Publisher delivers content to each target independently and removes the media file once.
type Publisher struct {
	destinations map[domain.TargetKind]ports.Destination
	metrics      *observability.Metrics
	logger       *slog.Logger
	attempts     int
	backoff      time.Duration
	sleep        func(context.Context, time.Duration) bool
	remove       func(string) error

	mu      sync.Mutex
	cleaned map[string]bool
}

// NewPublisher constructs the destination publisher.
func NewPublisher(deps PublisherDeps) *Publisher {
	p := &Publisher{
		destinations: deps.Destinations,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		attempts:     deps.Attempts,
		backoff:      deps.Backoff,
		sleep:        deps.Sleep,
		remove:       deps.Remove,
		cleaned:      map[string]bool{},
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.attempts <= 0 {
		p.attempts = 3
	}
	if p.sleep == nil {
		p.sleep = sleep
	}
	if p.remove == nil {
		p.remove = os.Remove
	}
	return p
}

// PublishAll attempts every target, then removes the media file. It never stops early on a failed target.
func (p *Publisher) PublishAll(ctx context.Context, d Delivery, targets []domain.PublishTarget) []domain.PublishResult {
	defer p.Cleanup(d.MediaPath)

	ctx, span := otel.Tracer("usecase/publisher").Start(ctx, "Publisher.PublishAll",
		trace.WithAttributes(attribute.Int("targets", len(targets)), attribute.Bool("media", d.MediaPath != "")))
	defer span.End()

	results := make([]domain.PublishResult, 0, len(targets))
	for _, target := range targets {
		res := p.publishOne(ctx, d, target)
		p.metrics.PublishResult(target.Name, res.OK)
		results = append(results, res)
		if ctx.Err() != nil {
			break
		}
	}
	return results
}

func (p *Publisher) publishOne(ctx context.Context, d Delivery, target domain.PublishTarget) domain.PublishResult {
	logger := p.logger.With("target", target.Name, "kind", string(target.Kind), "mode", string(target.Mode))
	res := domain.PublishResult{Target: target.Name}

	dest, ok := p.destinations[target.Kind]
	if !ok || dest == nil {
		res.Err = fmt.Errorf("no destination for kind %s", target.Kind)
		logger.Error("publish skipped", "error", res.Err)
		return res
	}

	text := strings.TrimSpace(d.Texts[target.Format])
	if text == "" {
		res.Err = fmt.Errorf("%w: empty %s text", ErrInvalidInput, target.Format)
		logger.Error("publish skipped", "error", res.Err)
		return res
	}

	post := domain.Post{Text: text, Mode: target.Mode}
	if target.AttachMedia && d.MediaPath != "" {
		if _, err := os.Stat(d.MediaPath); err == nil {
			post.MediaPath = d.MediaPath
			post.MediaKind = d.MediaKind
		} else {
			logger.Warn("media file missing, sending text only", "path", d.MediaPath, "error", err)
		}
	}

	ref, attempts, err := p.deliver(ctx, logger, dest, post)
	res.Attempts = attempts
	if err != nil && post.MediaPath != "" && ctx.Err() == nil && !isPartial(err) {
		logger.Warn("media publish failed, retrying as text only", "error", err)
		post.MediaPath, post.MediaKind = "", domain.MediaNone
		var more int
		ref, more, err = p.deliverOnce(ctx, dest, post)
		res.Attempts += more
		res.TextOnly = true
	}
	var partial *ports.PartialDeliveryError
	if errors.As(err, &partial) {
		res.OK, res.Partial, res.Reference, res.Err = true, true, partial.Reference, err
		logger.Warn("published partially, not repeating delivered parts", "reference", partial.Reference, "attempts", res.Attempts, "error", err)
		return res
	}
	if err != nil {
		res.Err = err
		logger.Error("publish failed", "attempts", res.Attempts, "error", err)
		return res
	}

	res.OK = true
	res.Reference = ref
	logger.Info("published", "reference", ref, "attempts", res.Attempts, "text_only", res.TextOnly)
	return res
}

// deliver retries transient failures with a fixed backoff.
func (p *Publisher) deliver(ctx context.Context, logger *slog.Logger, dest ports.Destination, post domain.Post) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		ref, err := dest.Publish(ctx, post)
		if err == nil {
			return ref, attempt, nil
		}
		lastErr = err
		if ctx.Err() != nil || isPartial(err) || !retryable(err) {
			return "", attempt, err
		}
		logger.Warn("publish attempt failed", "attempt", attempt, "of", p.attempts, "error", err)
		if attempt < p.attempts && !p.sleep(ctx, p.backoff) {
			return "", attempt, ctx.Err()
		}
	}
	return "", p.attempts, lastErr
}

func (p *Publisher) deliverOnce(ctx context.Context, dest ports.Destination, post domain.Post) (string, int, error) {
	ref, err := dest.Publish(ctx, post)
	return ref, 1, err
}

// Cleanup removes path once; later calls for the same path do nothing.
func (p *Publisher) Cleanup(path string) {
	if path == "" {
		return
	}
	p.mu.Lock()
	if p.cleaned[path] {
		p.mu.Unlock()
		return
	}
	p.cleaned[path] = true
	p.mu.Unlock()

	if err := p.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("media cleanup failed", "path", path, "error", err)
		return
	}
	p.logger.Debug("media removed", "path", path)
}

func isPartial(err error) bool {
	var partial *ports.PartialDeliveryError
	return errors.As(err, &partial)
}

func retryable(err error) bool {
	var statusErr *ports.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}
