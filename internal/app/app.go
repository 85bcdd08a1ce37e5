package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ChannelRelay/internal/channel"
	"ChannelRelay/internal/config"
	"ChannelRelay/internal/credential"
	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/infrastructure/facebook"
	"ChannelRelay/internal/infrastructure/llm"
	"ChannelRelay/internal/infrastructure/mtproto"
	"ChannelRelay/internal/infrastructure/parser"
	"ChannelRelay/internal/infrastructure/scheduler"
	"ChannelRelay/internal/infrastructure/storage"
	"ChannelRelay/internal/infrastructure/telegram"
	"ChannelRelay/internal/logging"
	"ChannelRelay/internal/observability"
	"ChannelRelay/internal/ports"
	"ChannelRelay/internal/textcheck"
	"ChannelRelay/internal/usecase"
)

// Application wires configs to use cases for a single relay run.
type Application struct {
	cfg      config.Config
	runID    string
	logger   *slog.Logger
	metrics  *observability.Metrics
	pipeline *usecase.Pipeline
	closers  []func(context.Context) error
}

// New builds the application. It opens the history store when HISTORY_DSN is set
// and starts tracing when enabled; everything else connects lazily.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	runID := uuid.NewString()
	baseLogger = baseLogger.With("run_id", runID)

	a := &Application{
		cfg:     cfg,
		runID:   runID,
		logger:  baseLogger,
		metrics: observability.NewMetrics(),
	}

	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, runID)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	session := mtproto.NewClient(mtproto.Options{
		AppID:       cfg.Telegram.APIID,
		AppHash:     cfg.Telegram.APIHash,
		SessionFile: cfg.Telegram.SessionFile,
		Channel:     cfg.Telegram.Channel,
		Logger:      baseLogger.With("component", "mtproto"),
	})

	registry := channel.NewRegistry()
	registry.Register(session)
	registry.Register(parser.NewWebPreview(nil, cfg.Sources.PreviewBaseURL))
	registry.Register(parser.NewRSSFeed(nil))
	source := parser.NewStrategySource(registry, cfg.Sources.Strategy, cfg.Sources.Feeds, baseLogger.With("component", "source"))

	var history ports.HistoryRepository
	if cfg.Database.DSN != "" {
		repo, closeDB, err := openHistory(ctx, cfg.Database.DSN)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		history = repo
		a.closers = append(a.closers, closeDB)
	}

	reader := usecase.NewReader(usecase.ReaderDeps{
		Source:  source,
		History: history,
		Metrics: a.metrics,
		Logger:  baseLogger.With("component", "reader"),
	})

	pool := credential.NewPool(cfg.Transform.Keys...)
	baseLogger.Info("credential pool ready", "provider", cfg.Transform.Provider, "keys", pool.Len())

	segments := textcheck.DefaultSegmentRules()
	segments.Policy = textcheck.OverflowPolicy(cfg.Transform.SegmentPolicy)

	transformer := usecase.NewTransformer(usecase.TransformerDeps{
		Generator:     newGenerator(cfg),
		Pool:          pool,
		Validator:     textcheck.NewValidator(cfg.Transform.Blacklist),
		Segments:      segments,
		Metrics:       a.metrics,
		Logger:        baseLogger.With("component", "transformer"),
		RotationDelay: cfg.Transform.RotationDelay,
	})

	publisher := usecase.NewPublisher(usecase.PublisherDeps{
		Destinations: destinations(cfg, session),
		Metrics:      a.metrics,
		Logger:       baseLogger.With("component", "publisher"),
		Attempts:     cfg.Pipeline.PublishRetries,
		Backoff:      cfg.Pipeline.PublishBackoff,
	})

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Reader:      reader,
		Transformer: transformer,
		Publisher:   publisher,
		Media:       source,
		History:     history,
		Pacer:       scheduler.NewStagePacer(cfg.Pipeline.StagePause),
		Metrics:     a.metrics,
		Logger:      baseLogger.With("component", "pipeline"),
	}, usecase.PipelineOptions{
		Read: usecase.ReadRequest{
			Channels:  cfg.Sources.Channels,
			Limit:     cfg.Sources.Limit,
			MinLength: cfg.Sources.MinContentLength,
		},
		Targets:       cfg.Targets(),
		Mode:          cfg.Pipeline.Mode,
		SuccessPolicy: cfg.Pipeline.SuccessPolicy,
		MediaDir:      cfg.Pipeline.MediaDir,
	})
	return a, nil
}

// RunID identifies this invocation in logs, traces and pushed metrics.
func (a *Application) RunID() string {
	return a.runID
}

// Run performs one relay cycle.
func (a *Application) Run(ctx context.Context) (usecase.Report, error) {
	started := time.Now()
	report, err := a.pipeline.Run(ctx)

	args := []any{"duration", time.Since(started), "published", report.Succeeded(), "targets", len(report.Results)}
	if report.Message.ID != "" {
		args = append(args, "message", report.Message.Key())
	}
	switch {
	case err == nil:
		a.logger.Info("run finished", args...)
	case usecase.IsInterrupted(err):
		a.logger.Warn("run interrupted", args...)
	default:
		a.logger.Error("run failed", append(args, "error", err)...)
	}
	return report, err
}

// ExitCode maps the outcome of Run to the process exit status. An interrupted run exits
// cleanly; any other failure, including a run with nothing published, exits with 1.
func ExitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}
	if usecase.IsInterrupted(err) || ctx.Err() != nil {
		return 0
	}
	return 1
}

// Close pushes metrics and releases the history store and tracer. It is safe to call once.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if err := a.metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job, a.runID); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openHistory(ctx context.Context, dsn string) (*storage.PostgresRepository, func(context.Context) error, error) {
	db, err := storage.Open(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open history store: %w", err)
	}
	repo := storage.NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("prepare history store: %w", err)
	}
	return repo, func(context.Context) error { return db.Close() }, nil
}

func newGenerator(cfg config.Config) ports.Generator {
	if cfg.Transform.Provider == "gemini" {
		return llm.NewGeminiClient(cfg.Gemini)
	}
	return llm.NewChatGPTClient(cfg.ChatGPT)
}

// destinations picks the Bot API when a bot token is configured and the user session otherwise.
func destinations(cfg config.Config, session *mtproto.Client) map[domain.TargetKind]ports.Destination {
	out := map[domain.TargetKind]ports.Destination{}
	if cfg.Telegram.Enabled {
		if cfg.Telegram.BotToken != "" {
			out[domain.TargetTelegram] = telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.Channel)
		} else {
			out[domain.TargetTelegram] = session
		}
	}
	if cfg.Facebook.Enabled {
		out[domain.TargetFacebook] = facebook.NewPage(cfg.Facebook)
	}
	return out
}
