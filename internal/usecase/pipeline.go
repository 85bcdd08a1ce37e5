package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/language"

	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/observability"
	"ChannelRelay/internal/ports"
	"ChannelRelay/internal/textcheck"
)

// Run modes.
const (
	ModeBilingual = "bilingual"
	ModeSummary   = "summary"
)

// Success policies applied to the per-target results.
const (
	PolicyAny = "any"
	PolicyAll = "all"
)

// minPostScriptRunes is the least amount of target-script letters a post may carry.
const minPostScriptRunes = 50

// PipelineDeps wires all driven adapters into the relay pipeline.
type PipelineDeps struct {
	Reader      *Reader
	Transformer *Transformer
	Publisher   *Publisher
	Media       ports.MediaFetcher
	History     ports.HistoryRepository
	Pacer       ports.Pacer
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// PipelineOptions are the static settings of one run.
type PipelineOptions struct {
	Read           ReadRequest
	Targets        []domain.PublishTarget
	Mode           string
	SuccessPolicy  string
	MediaDir       string
	PostLanguage   language.Tag
	ThreadLanguage language.Tag
}

// Report summarizes a run.
type Report struct {
	Message   domain.SourceMessage
	Post      string
	Thread    []string
	MediaPath string
	Results   []domain.PublishResult
}

// Succeeded counts targets that accepted the content.
func (r Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK {
			n++
		}
	}
	return n
}

// Pipeline implements the read, transform, publish workflow of one invocation.
type Pipeline struct {
	reader      *Reader
	transformer *Transformer
	publisher   *Publisher
	media       ports.MediaFetcher
	history     ports.HistoryRepository
	pacer       ports.Pacer
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
	opts        PipelineOptions
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		reader:      deps.Reader,
		transformer: deps.Transformer,
		publisher:   deps.Publisher,
		media:       deps.Media,
		history:     deps.History,
		pacer:       deps.Pacer,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
		opts:        opts,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.opts.Mode == "" {
		p.opts.Mode = ModeBilingual
	}
	if p.opts.SuccessPolicy == "" {
		p.opts.SuccessPolicy = PolicyAny
	}
	if p.opts.PostLanguage == language.Und {
		p.opts.PostLanguage = language.Arabic
	}
	if p.opts.ThreadLanguage == language.Und {
		p.opts.ThreadLanguage = language.English
	}
	return p
}

// Run executes one cycle. The error is nil only when the success policy is met.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	ctx, span := otel.Tracer("usecase/pipeline").Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("mode", p.opts.Mode))

	var report Report
	if len(p.opts.Targets) == 0 {
		return report, fmt.Errorf("%w: no publish targets enabled", ErrInvalidInput)
	}

	started := time.Now()
	msg, err := p.reader.Select(ctx, p.opts.Read)
	p.metrics.ObserveStage("read", time.Since(started).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, "read failed")
		return report, fmt.Errorf("read source: %w", err)
	}
	report.Message = msg
	logger := p.logger.With("channel", msg.Channel, "message_id", msg.ID)

	var texts map[domain.Format]string
	switch p.opts.Mode {
	case ModeSummary:
		texts, err = p.summaryTexts(ctx, logger, msg, &report)
	default:
		texts, err = p.bilingualTexts(ctx, logger, msg, &report)
	}
	// the media file must go even when generation aborted
	defer p.publisher.Cleanup(report.MediaPath)
	if err != nil {
		span.SetStatus(codes.Error, "transform failed")
		return report, err
	}

	started = time.Now()
	report.Results = p.publisher.PublishAll(ctx, Delivery{
		Texts:     texts,
		MediaPath: report.MediaPath,
		MediaKind: msg.Media.Kind,
	}, p.opts.Targets)
	p.metrics.ObserveStage("publish", time.Since(started).Seconds())

	p.record(ctx, logger, msg, report.Results)

	ok := report.Succeeded()
	logger.Info("run finished", "succeeded", ok, "targets", len(report.Results), "policy", p.opts.SuccessPolicy)
	if !p.satisfied(ok, len(p.opts.Targets)) {
		span.SetStatus(codes.Error, "success policy not met")
		return report, fmt.Errorf("%w: %d of %d targets succeeded, policy %s", ErrNothingPublished, ok, len(p.opts.Targets), p.opts.SuccessPolicy)
	}
	return report, nil
}

func (p *Pipeline) bilingualTexts(ctx context.Context, logger *slog.Logger, msg domain.SourceMessage, report *Report) (map[domain.Format]string, error) {
	original := msg.Text
	postSource := original

	detected := textcheck.DetectLanguage(original)
	logger.Info("source language detected", "language", string(detected))

	postBase, _ := p.opts.PostLanguage.Base()
	detectedBase, _ := detected.Tag().Base()
	if detectedBase != postBase {
		if err := p.pace(ctx); err != nil {
			return nil, err
		}
		started := time.Now()
		res, err := p.transformer.Transform(ctx, domain.TransformRequest{
			Task:     domain.TaskTranslate,
			Language: p.opts.PostLanguage,
			Text:     original,
		})
		p.metrics.ObserveStage("translate", time.Since(started).Seconds())
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logger.Warn("translation failed, keeping original text", "error", err)
		default:
			postSource = res.Text
		}
	}

	report.MediaPath = p.downloadMedia(ctx, logger, msg)

	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	post, err := p.buildPost(ctx, logger, postSource)
	if err != nil {
		return nil, err
	}
	report.Post = post + Footer(p.now())
	texts := map[domain.Format]string{domain.FormatPost: report.Post}

	if !p.wants(domain.FormatThread) {
		return texts, nil
	}
	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	report.Thread, err = p.buildThread(ctx, logger, original)
	if err != nil {
		return nil, err
	}
	texts[domain.FormatThread] = FormatThread(report.Thread)
	return texts, nil
}

func (p *Pipeline) summaryTexts(ctx context.Context, logger *slog.Logger, msg domain.SourceMessage, report *Report) (map[domain.Format]string, error) {
	report.MediaPath = p.downloadMedia(ctx, logger, msg)

	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	res, err := p.transformer.Transform(ctx, domain.TransformRequest{
		Task:     domain.TaskSummary,
		Language: p.opts.PostLanguage,
		Text:     msg.Text,
	})
	p.metrics.ObserveStage("summary", time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	report.Post = res.Text + Footer(p.now())
	return map[domain.Format]string{domain.FormatPost: report.Post}, nil
}

// buildPost rewrites the text as a post, falling back to a template around the source.
// The body must carry enough of the target script; otherwise the source is used
// when it has any, and the run aborts when it has none.
func (p *Pipeline) buildPost(ctx context.Context, logger *slog.Logger, source string) (string, error) {
	started := time.Now()
	res, err := p.transformer.Transform(ctx, domain.TransformRequest{
		Task:     domain.TaskRewrite,
		Language: p.opts.PostLanguage,
		Text:     source,
	})
	p.metrics.ObserveStage("rewrite", time.Since(started).Seconds())
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	body, fallback := res.Text, false
	if err != nil {
		logger.Warn("post generation failed, using fallback template", "error", err)
		body, fallback = source, true
	}

	if script := textcheck.ScriptFor(p.opts.PostLanguage); script != nil {
		if n := textcheck.CountIn(body, script); n < minPostScriptRunes {
			if !textcheck.ContainsScript(source, script) {
				return "", fmt.Errorf("%w: post has %d %s letters and the source has none", ErrTransformFailed, n, languageName(p.opts.PostLanguage))
			}
			logger.Warn("post too thin in target script, using source text", "letters", n)
			body, fallback = source, true
		}
	}

	if fallback {
		return fallbackPost(body, p.opts.PostLanguage), nil
	}
	return body, nil
}

// buildThread tries a generated thread, then a translated one, then the canned thread.
func (p *Pipeline) buildThread(ctx context.Context, logger *slog.Logger, original string) ([]string, error) {
	started := time.Now()
	defer func() { p.metrics.ObserveStage("thread", time.Since(started).Seconds()) }()

	res, err := p.transformer.Transform(ctx, domain.TransformRequest{
		Task:     domain.TaskThread,
		Language: p.opts.ThreadLanguage,
		Text:     original,
	})
	if err == nil {
		return res.Segments, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Warn("thread generation failed, trying translation", "error", err)

	if err := p.pace(ctx); err != nil {
		return nil, err
	}
	tr, err := p.transformer.Transform(ctx, domain.TransformRequest{
		Task:     domain.TaskTranslate,
		Language: p.opts.ThreadLanguage,
		Text:     original,
	})
	if err == nil {
		return translationThread(tr.Text), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logger.Warn("thread translation failed, using canned thread", "error", err)
	return append([]string(nil), cannedThread...), nil
}

func (p *Pipeline) downloadMedia(ctx context.Context, logger *slog.Logger, msg domain.SourceMessage) string {
	if p.media == nil || !msg.HasVisualMedia() || !p.wantsMedia() {
		return ""
	}
	started := time.Now()
	path, err := p.media.DownloadMedia(ctx, msg, p.opts.MediaDir)
	p.metrics.ObserveStage("media", time.Since(started).Seconds())
	if err != nil {
		logger.Warn("media download failed, continuing without media", "error", err)
		return ""
	}
	logger.Info("media downloaded", "path", path, "kind", string(msg.Media.Kind))
	return path
}

func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, msg domain.SourceMessage, results []domain.PublishResult) {
	if p.history == nil {
		return
	}
	for _, res := range results {
		if !res.OK {
			continue
		}
		err := p.history.SavePublished(ctx, domain.PublishedRecord{
			MessageKey:  msg.Key(),
			Channel:     msg.Channel,
			Target:      res.Target,
			Reference:   res.Reference,
			PublishedAt: p.now().UTC(),
		})
		if err != nil {
			logger.Warn("history save failed", "target", res.Target, "error", err)
		}
	}
}

func (p *Pipeline) pace(ctx context.Context) error {
	if p.pacer == nil {
		return ctx.Err()
	}
	if err := p.pacer.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pacer: %w", err)
	}
	return nil
}

func (p *Pipeline) wants(f domain.Format) bool {
	for _, t := range p.opts.Targets {
		if t.Format == f {
			return true
		}
	}
	return false
}

func (p *Pipeline) wantsMedia() bool {
	for _, t := range p.opts.Targets {
		if t.AttachMedia {
			return true
		}
	}
	return false
}

func (p *Pipeline) satisfied(ok, total int) bool {
	if p.opts.SuccessPolicy == PolicyAll {
		return ok == total
	}
	return ok > 0
}

// IsInterrupted reports whether err came from cancelling the run.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
