package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"ChannelRelay/internal/credential"
	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/observability"
	"ChannelRelay/internal/ports"
	"ChannelRelay/internal/textcheck"
)

// TransformerDeps wires the text service and its credential pool.
type TransformerDeps struct {
	Generator ports.Generator
	Pool      *credential.Pool
	Validator *textcheck.Validator
	Segments  textcheck.SegmentRules
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	// RotationDelay is the fixed wait after blocking a credential.
	RotationDelay time.Duration
	// Sleep waits for d and reports false if ctx ended first.
	Sleep func(ctx context.Context, d time.Duration) bool
}

// Transformer sends text to the generator with retries, credential rotation and validation.
type Transformer struct {
	generator     ports.Generator
	pool          *credential.Pool
	validator     *textcheck.Validator
	segments      textcheck.SegmentRules
	metrics       *observability.Metrics
	logger        *slog.Logger
	rotationDelay time.Duration
	sleep         func(context.Context, time.Duration) bool
}

// NewTransformer constructs the content transformer.
func NewTransformer(deps TransformerDeps) *Transformer {
	t := &Transformer{
		generator:     deps.Generator,
		pool:          deps.Pool,
		validator:     deps.Validator,
		segments:      deps.Segments,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		rotationDelay: deps.RotationDelay,
		sleep:         deps.Sleep,
	}
	if t.pool == nil {
		t.pool = credential.NewPool()
	}
	if t.validator == nil {
		t.validator = textcheck.NewValidator(nil)
	}
	if t.segments.MinCount == 0 {
		t.segments = textcheck.DefaultSegmentRules()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.sleep == nil {
		t.sleep = sleep
	}
	return t
}

// Transform produces validated output for req or fails with ErrInputTooShort,
// ErrNoCredential or ErrTransformFailed.
func (t *Transformer) Transform(ctx context.Context, req domain.TransformRequest) (domain.TransformResult, error) {
	spec, ok := taskSpecs[req.Task]
	if !ok {
		return domain.TransformResult{}, fmt.Errorf("%w: unknown task %q", ErrInvalidInput, req.Task)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(req.Text)); n < spec.minInput {
		return domain.TransformResult{}, fmt.Errorf("%w: %d runes, need %d", ErrInputTooShort, n, spec.minInput)
	}
	if t.generator == nil {
		return domain.TransformResult{}, fmt.Errorf("text generator is not configured")
	}

	tag := req.Language
	if tag == language.Und && req.Task != domain.TaskSummary {
		tag = language.English
	}
	budget := spec.attempts
	if req.RetryBudget > 0 {
		budget = req.RetryBudget
	}

	ctx, span := otel.Tracer("usecase/transformer").Start(ctx, "Transformer.Transform",
		trace.WithAttributes(
			attribute.String("task", string(req.Task)),
			attribute.String("language", tag.String()),
			attribute.Int("budget", budget),
		))
	defer span.End()

	system, prompt := spec.render(tag, req.Text)
	logger := t.logger.With("task", string(req.Task), "language", tag.String())

	var lastErr error
	attempt := 1
	for attempt <= budget {
		key, ok := t.pool.Next()
		if !ok {
			logger.Error("credential pool exhausted", "keys", t.pool.Len())
			span.SetStatus(codes.Error, "no credential")
			return domain.TransformResult{}, fmt.Errorf("%w: %w", ErrTransformFailed, ErrNoCredential)
		}
		keyLog := logger.With("credential", credential.Preview(key), "attempt", attempt, "budget", budget)
		keyLog.Info("calling text service")

		callCtx, cancel := context.WithTimeout(ctx, spec.timeout)
		out, err := t.generator.Generate(callCtx, ports.GenerateRequest{
			APIKey:      key,
			System:      system,
			Prompt:      prompt,
			Temperature: spec.temperature,
			MaxTokens:   spec.maxTokens,
		})
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return domain.TransformResult{}, ctx.Err()
			}

			var statusErr *ports.StatusError
			if errors.As(err, &statusErr) && statusErr.RotatesCredential() {
				t.pool.Block(key)
				t.metrics.TransformAttempt(string(req.Task), "blocked")
				t.metrics.CredentialBlocked()
				keyLog.Warn("credential blocked", "status", statusErr.StatusCode, "available", t.pool.Available(), "keys", t.pool.Len())
				lastErr = err
				if !t.sleep(ctx, t.rotationDelay) {
					return domain.TransformResult{}, ctx.Err()
				}
				continue
			}

			t.metrics.TransformAttempt(string(req.Task), "error")
			keyLog.Error("text service call failed", "error", err)
			lastErr = err
			if attempt < budget && !t.sleep(ctx, time.Duration(attempt)*spec.retryStep) {
				return domain.TransformResult{}, ctx.Err()
			}
			attempt++
			continue
		}

		result, verr := t.validate(spec, tag, out)
		if verr == nil {
			result.Attempts = attempt
			result.Credential = credential.Preview(key)
			t.metrics.TransformAttempt(string(req.Task), "ok")
			keyLog.Info("text accepted", "length", utf8.RuneCountInString(result.Text), "segments", len(result.Segments))
			return result, nil
		}

		t.metrics.TransformAttempt(string(req.Task), "rejected")
		keyLog.Warn("text rejected", "reason", verr)
		lastErr = verr
		if attempt < budget && !t.sleep(ctx, spec.rejectDelay) {
			return domain.TransformResult{}, ctx.Err()
		}
		attempt++
	}

	span.SetStatus(codes.Error, "retry budget exhausted")
	return domain.TransformResult{}, fmt.Errorf("%w after %d attempts: %w", ErrTransformFailed, budget, lastErr)
}

func (t *Transformer) validate(spec taskSpec, tag language.Tag, out string) (domain.TransformResult, error) {
	out = strings.TrimSpace(out)

	if !spec.segmented {
		flags, err := t.validator.Check(out, spec.rules(tag))
		if err != nil {
			return domain.TransformResult{}, err
		}
		return domain.TransformResult{Text: out, Validation: flags}, nil
	}

	rules := t.segments
	// a thread written in the forbidden script keeps its segments
	if script := textcheck.ScriptFor(tag); script != nil && script == rules.Forbidden {
		rules.Forbidden = nil
	}
	segments, stats, err := textcheck.ParseSegments(out, rules)
	if err != nil {
		return domain.TransformResult{}, &textcheck.Rejection{Reasons: []string{err.Error()}}
	}
	if stats.Truncated > 0 || stats.Dropped > 0 {
		t.logger.Info("thread segments adjusted", "found", stats.Found, "truncated", stats.Truncated, "dropped", stats.Dropped)
	}

	flags := domain.Validation{LanguageOK: true, LengthOK: true, BlacklistOK: true, HashtagsOK: true}
	if phrase, bad := t.validator.StartsWithFiller(segments[0], tag); bad {
		return domain.TransformResult{}, &textcheck.Rejection{Reasons: []string{fmt.Sprintf("thread opens with filler %q", phrase)}}
	}
	return domain.TransformResult{
		Text:       strings.Join(segments, "\n\n"),
		Segments:   segments,
		Validation: flags,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
