package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/observability"
	"ChannelRelay/internal/ports"
)

// ReaderDeps wires the driven adapters of the source reader.
type ReaderDeps struct {
	Source  ports.MessageSource
	History ports.HistoryRepository
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// IntN picks an index in [0, n); defaults to math/rand/v2.
	IntN func(n int) int
}

// ReadRequest describes one selection.
type ReadRequest struct {
	Channels  []string
	Limit     int
	MinLength int
}

// Reader pulls recent posts from every source channel and selects one of the longest.
type Reader struct {
	source  ports.MessageSource
	history ports.HistoryRepository
	metrics *observability.Metrics
	logger  *slog.Logger
	intN    func(int) int
}

// NewReader constructs the source reader.
func NewReader(deps ReaderDeps) *Reader {
	r := &Reader{
		source:  deps.Source,
		history: deps.History,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		intN:    deps.IntN,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.intN == nil {
		r.intN = rand.IntN
	}
	return r
}

// Select returns one qualifying message or ErrNoContent. A failing channel contributes nothing.
func (r *Reader) Select(ctx context.Context, req ReadRequest) (domain.SourceMessage, error) {
	if len(req.Channels) == 0 || req.Limit <= 0 || req.MinLength < 0 {
		return domain.SourceMessage{}, fmt.Errorf("%w: channels=%d limit=%d min=%d", ErrInvalidInput, len(req.Channels), req.Limit, req.MinLength)
	}
	if r.source == nil {
		return domain.SourceMessage{}, fmt.Errorf("message source is not configured")
	}

	ctx, span := otel.Tracer("usecase/reader").Start(ctx, "Reader.Select",
		trace.WithAttributes(attribute.Int("channels", len(req.Channels))))
	defer span.End()

	var pool []domain.SourceMessage
	for _, ch := range req.Channels {
		msgs, err := r.source.Recent(ctx, ch, req.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return domain.SourceMessage{}, ctx.Err()
			}
			r.logger.Warn("channel fetch failed", "channel", ch, "error", err)
			r.metrics.SourceMessages(ch, "error", 1)
			continue
		}
		r.logger.Info("channel fetched", "channel", ch, "messages", len(msgs))
		r.metrics.SourceMessages(ch, "ok", len(msgs))
		pool = append(pool, msgs...)
	}

	pool = r.dropPublished(ctx, pool)

	candidates := filterQualifying(pool, req.MinLength)
	if len(candidates) == 0 {
		relaxed := req.MinLength / 2
		r.logger.Info("no message met the threshold, relaxing", "threshold", req.MinLength, "relaxed", relaxed)
		candidates = filterQualifying(pool, relaxed)
	}
	if len(candidates) == 0 {
		span.SetAttributes(attribute.Bool("selected", false))
		return domain.SourceMessage{}, ErrNoContent
	}

	selected := r.pick(candidates)
	span.SetAttributes(attribute.String("channel", selected.Channel), attribute.String("message_id", selected.ID))
	r.logger.Info("message selected",
		"channel", selected.Channel,
		"id", selected.ID,
		"length", utf8.RuneCountInString(selected.Text),
		"media", string(selected.Media.Kind),
		"candidates", len(candidates),
	)
	return selected, nil
}

func (r *Reader) dropPublished(ctx context.Context, pool []domain.SourceMessage) []domain.SourceMessage {
	if r.history == nil || len(pool) == 0 {
		return pool
	}

	keys := make([]string, len(pool))
	for i, m := range pool {
		keys[i] = m.Key()
	}
	seen, err := r.history.AlreadyPublished(ctx, keys)
	if err != nil {
		r.logger.Warn("history lookup failed, keeping all messages", "error", err)
		return pool
	}

	fresh := pool[:0:0]
	for _, m := range pool {
		if !seen[m.Key()] {
			fresh = append(fresh, m)
		}
	}
	if skipped := len(pool) - len(fresh); skipped > 0 {
		r.logger.Info("skipped already published messages", "count", skipped)
	}
	return fresh
}

// pick chooses uniformly among the top third by text length, at least one.
func (r *Reader) pick(candidates []domain.SourceMessage) domain.SourceMessage {
	sorted := append([]domain.SourceMessage(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Text) > utf8.RuneCountInString(sorted[j].Text)
	})

	top := len(sorted) / 3
	if top < 1 {
		top = 1
	}
	return sorted[r.intN(top)]
}

func filterQualifying(msgs []domain.SourceMessage, minLength int) []domain.SourceMessage {
	var out []domain.SourceMessage
	for _, m := range msgs {
		if qualifies(m, minLength) {
			out = append(out, m)
		}
	}
	return out
}

func qualifies(m domain.SourceMessage, minLength int) bool {
	text := strings.TrimSpace(m.Text)
	if text != "" && utf8.RuneCountInString(text) >= minLength {
		return true
	}
	return m.HasVisualMedia() && text != ""
}
