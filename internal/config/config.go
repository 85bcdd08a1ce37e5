package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ChannelRelay/internal/domain"
)

const (
	configPathEnv  = "CHANNELRELAY_CONFIG"
	maxNumberedKey = 5
)

// Config holds every setting of a single relay run.
type Config struct {
	Sources   SourceConfig    `yaml:"sources"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Facebook  FacebookConfig  `yaml:"facebook"`
	Transform TransformConfig `yaml:"transform"`
	ChatGPT   ChatGPTConfig   `yaml:"chatgpt"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	OTEL      OTELConfig      `yaml:"otel"`
}

// SourceConfig lists the channels polled for content.
type SourceConfig struct {
	Channels         []string          `yaml:"channels"`
	Strategy         string            `yaml:"strategy"`
	Limit            int               `yaml:"limit"`
	MinContentLength int               `yaml:"minContentLength"`
	PreviewBaseURL   string            `yaml:"previewBaseUrl"`
	Feeds            map[string]string `yaml:"feeds"`
}

// TelegramConfig covers both the user session (MTProto) and the optional bot token.
type TelegramConfig struct {
	Channel       string `yaml:"channel"`
	APIID         int    `yaml:"apiId"`
	APIHash       string `yaml:"apiHash"`
	SessionBase64 string `yaml:"sessionBase64"`
	SessionFile   string `yaml:"sessionFile"`
	BotToken      string `yaml:"botToken"`
	Enabled       bool   `yaml:"enabled"`
	PublishThread bool   `yaml:"publishThread"`
}

// FacebookConfig describes the page feed target.
type FacebookConfig struct {
	PageID    string `yaml:"pageId"`
	PageToken string `yaml:"pageToken"`
	GraphURL  string `yaml:"graphUrl"`
	Draft     bool   `yaml:"draft"`
	Enabled   bool   `yaml:"enabled"`
}

// TransformConfig selects the text service and its credential pool.
type TransformConfig struct {
	Provider      string              `yaml:"provider"`
	Keys          []string            `yaml:"keys"`
	RotationDelay time.Duration       `yaml:"rotationDelay"`
	SegmentPolicy string              `yaml:"segmentPolicy"`
	Blacklist     map[string][]string `yaml:"blacklist"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GeminiConfig defines the Gemini model used when provider is gemini.
type GeminiConfig struct {
	Model string `yaml:"model"`
}

// PipelineConfig tunes the run itself.
type PipelineConfig struct {
	Mode           string        `yaml:"mode"`
	SuccessPolicy  string        `yaml:"successPolicy"`
	StagePause     time.Duration `yaml:"stagePause"`
	MediaDir       string        `yaml:"mediaDir"`
	PublishRetries int           `yaml:"publishRetries"`
	PublishBackoff time.Duration `yaml:"publishBackoff"`
}

// LoggingConfig controls slog output and the rotating file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
}

// DatabaseConfig describes the optional Postgres history store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// MetricsConfig points at a Prometheus Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl"`
	Job            string `yaml:"job"`
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// ValidationError lists every missing or malformed setting.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// Load reads .env and the YAML file (if present), applies environment overrides and validates.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := splitCSV(os.Getenv("SOURCE_CHANNELS")); len(v) > 0 {
		c.Sources.Channels = v
	}
	c.Sources.Strategy = getenv("SOURCE_STRATEGY", c.Sources.Strategy)
	c.Sources.Limit = getint("POSTS_LIMIT", c.Sources.Limit)
	c.Sources.MinContentLength = getint("MIN_CONTENT_LENGTH", c.Sources.MinContentLength)
	c.Sources.PreviewBaseURL = getenv("PREVIEW_BASE_URL", c.Sources.PreviewBaseURL)

	c.Telegram.Channel = getenv("TELEGRAM_CHANNEL", c.Telegram.Channel)
	c.Telegram.APIID = getint("TELEGRAM_API_ID", c.Telegram.APIID)
	c.Telegram.APIHash = getenv("TELEGRAM_API_HASH", c.Telegram.APIHash)
	c.Telegram.SessionBase64 = getenv("USER_SESSION_BASE64", c.Telegram.SessionBase64)
	c.Telegram.SessionFile = getenv("SESSION_FILE", c.Telegram.SessionFile)
	c.Telegram.BotToken = getenv("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.Enabled = getbool("POST_TO_TELEGRAM", c.Telegram.Enabled)
	c.Telegram.PublishThread = getbool("PUBLISH_THREAD", c.Telegram.PublishThread)

	c.Facebook.PageID = getenv("FACEBOOK_PAGE_ID", c.Facebook.PageID)
	c.Facebook.PageToken = getenv("FACEBOOK_PAGE_TOKEN", c.Facebook.PageToken)
	c.Facebook.Draft = getbool("FACEBOOK_DRAFT_MODE", c.Facebook.Draft)
	c.Facebook.Enabled = getbool("POST_TO_FACEBOOK", c.Facebook.Enabled)

	c.Transform.Provider = strings.ToLower(getenv("TRANSFORM_PROVIDER", c.Transform.Provider))
	prefix := "OPENAI_API_KEY"
	if c.Transform.Provider == "gemini" {
		prefix = "GEMINI_API_KEY"
	}
	if keys := numberedKeys(prefix); len(keys) > 0 {
		c.Transform.Keys = keys
	}
	c.Transform.RotationDelay = getdur("KEY_ROTATION_DELAY", c.Transform.RotationDelay)
	c.Transform.SegmentPolicy = strings.ToLower(getenv("THREAD_SEGMENT_POLICY", c.Transform.SegmentPolicy))

	c.ChatGPT.Endpoint = getenv("OPENAI_ENDPOINT", c.ChatGPT.Endpoint)
	c.ChatGPT.Model = getenv("OPENAI_MODEL", c.ChatGPT.Model)
	c.Gemini.Model = getenv("GEMINI_MODEL", c.Gemini.Model)

	c.Pipeline.Mode = strings.ToLower(getenv("TASK_MODE", c.Pipeline.Mode))
	c.Pipeline.SuccessPolicy = strings.ToLower(getenv("SUCCESS_POLICY", c.Pipeline.SuccessPolicy))
	c.Pipeline.StagePause = getdur("STAGE_PAUSE", c.Pipeline.StagePause)
	c.Pipeline.MediaDir = getenv("MEDIA_DIR", c.Pipeline.MediaDir)
	c.Pipeline.PublishRetries = getint("PUBLISH_RETRIES", c.Pipeline.PublishRetries)
	c.Pipeline.PublishBackoff = getdur("PUBLISH_BACKOFF", c.Pipeline.PublishBackoff)

	c.Logging.Level = strings.ToLower(getenv("LOG_LEVEL", c.Logging.Level))
	c.Logging.File = getenv("LOG_FILE", c.Logging.File)
	c.Logging.MaxSizeMB = getint("LOG_MAX_SIZE_MB", c.Logging.MaxSizeMB)
	c.Logging.MaxBackups = getint("LOG_MAX_BACKUPS", c.Logging.MaxBackups)

	c.Database.DSN = getenv("HISTORY_DSN", c.Database.DSN)
	c.Metrics.PushgatewayURL = getenv("PUSHGATEWAY_URL", c.Metrics.PushgatewayURL)

	c.OTEL.Enabled = getbool("OTEL_ENABLED", c.OTEL.Enabled)
	c.OTEL.Endpoint = getenv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTEL.Endpoint)
	c.OTEL.Insecure = getbool("OTEL_EXPORTER_OTLP_INSECURE", c.OTEL.Insecure)
	c.OTEL.ServiceName = getenv("OTEL_SERVICE_NAME", c.OTEL.ServiceName)
	c.OTEL.SampleRatio = getfloat("OTEL_TRACES_SAMPLER_ARG", c.OTEL.SampleRatio)
}

func (c *Config) normalize() {
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Telegram.Channel = strings.TrimPrefix(strings.TrimSpace(c.Telegram.Channel), "@")
	for i, ch := range c.Sources.Channels {
		c.Sources.Channels[i] = strings.TrimPrefix(strings.TrimSpace(ch), "@")
	}
}

// Validate reports every missing required value at once.
func (c Config) Validate() error {
	verr := &ValidationError{}

	if len(c.Sources.Channels) == 0 {
		verr.Missing = append(verr.Missing, "SOURCE_CHANNELS")
	}
	if len(c.Transform.Keys) == 0 {
		if c.Transform.Provider == "gemini" {
			verr.Missing = append(verr.Missing, "GEMINI_API_KEY")
		} else {
			verr.Missing = append(verr.Missing, "OPENAI_API_KEY")
		}
	}
	if c.Telegram.Enabled && c.Telegram.Channel == "" {
		verr.Missing = append(verr.Missing, "TELEGRAM_CHANNEL")
	}
	if c.NeedsSession() {
		if c.Telegram.APIID == 0 {
			verr.Missing = append(verr.Missing, "TELEGRAM_API_ID")
		}
		if c.Telegram.APIHash == "" {
			verr.Missing = append(verr.Missing, "TELEGRAM_API_HASH")
		}
		if c.Telegram.SessionBase64 == "" {
			verr.Missing = append(verr.Missing, "USER_SESSION_BASE64")
		}
	}
	if c.Facebook.Enabled {
		if c.Facebook.PageID == "" {
			verr.Missing = append(verr.Missing, "FACEBOOK_PAGE_ID")
		}
		if c.Facebook.PageToken == "" {
			verr.Missing = append(verr.Missing, "FACEBOOK_PAGE_TOKEN")
		}
	}
	if !c.Telegram.Enabled && !c.Facebook.Enabled {
		verr.Invalid = append(verr.Invalid, "POST_TO_TELEGRAM/POST_TO_FACEBOOK (no destination enabled)")
	}

	switch c.Sources.Strategy {
	case "mtproto", "web", "rss":
	default:
		verr.Invalid = append(verr.Invalid, "SOURCE_STRATEGY="+c.Sources.Strategy)
	}
	switch c.Transform.Provider {
	case "openai", "gemini":
	default:
		verr.Invalid = append(verr.Invalid, "TRANSFORM_PROVIDER="+c.Transform.Provider)
	}
	switch c.Transform.SegmentPolicy {
	case "truncate", "drop":
	default:
		verr.Invalid = append(verr.Invalid, "THREAD_SEGMENT_POLICY="+c.Transform.SegmentPolicy)
	}
	switch c.Pipeline.SuccessPolicy {
	case "any", "all":
	default:
		verr.Invalid = append(verr.Invalid, "SUCCESS_POLICY="+c.Pipeline.SuccessPolicy)
	}
	switch c.Pipeline.Mode {
	case "bilingual", "summary":
	default:
		verr.Invalid = append(verr.Invalid, "TASK_MODE="+c.Pipeline.Mode)
	}
	if c.Sources.Limit <= 0 {
		verr.Invalid = append(verr.Invalid, "POSTS_LIMIT="+strconv.Itoa(c.Sources.Limit))
	}
	if c.Sources.MinContentLength < 0 {
		verr.Invalid = append(verr.Invalid, "MIN_CONTENT_LENGTH="+strconv.Itoa(c.Sources.MinContentLength))
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		verr.Invalid = append(verr.Invalid, "OTEL_TRACES_SAMPLER_ARG")
	}

	if len(verr.Missing) == 0 && len(verr.Invalid) == 0 {
		return nil
	}
	return verr
}

// NeedsSession reports whether an MTProto user session is required.
func (c Config) NeedsSession() bool {
	if c.Sources.Strategy == "mtproto" {
		return true
	}
	return c.Telegram.Enabled && c.Telegram.BotToken == ""
}

// Targets turns the toggles into publish targets.
func (c Config) Targets() []domain.PublishTarget {
	var targets []domain.PublishTarget
	if c.Telegram.Enabled {
		targets = append(targets, domain.PublishTarget{
			Name:        "telegram",
			Kind:        domain.TargetTelegram,
			Mode:        domain.ModeLive,
			AttachMedia: true,
			Format:      domain.FormatPost,
		})
		if c.Telegram.PublishThread && c.Pipeline.Mode == "bilingual" {
			targets = append(targets, domain.PublishTarget{
				Name:   "telegram-thread",
				Kind:   domain.TargetTelegram,
				Mode:   domain.ModeLive,
				Format: domain.FormatThread,
			})
		}
	}
	if c.Facebook.Enabled {
		mode := domain.ModeLive
		if c.Facebook.Draft {
			mode = domain.ModeDraft
		}
		targets = append(targets, domain.PublishTarget{
			Name:        "facebook",
			Kind:        domain.TargetFacebook,
			Mode:        mode,
			AttachMedia: true,
			Format:      domain.FormatPost,
		})
	}
	return targets
}

// DecodeSession writes the base64 session blob to SessionFile.
func (c Config) DecodeSession() error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Telegram.SessionBase64))
	if err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	// the MTProto client stores its session as JSON; a Telethon .session file is SQLite
	if bytes.HasPrefix(raw, []byte("SQLite format 3")) {
		return errors.New("decode session: USER_SESSION_BASE64 holds a SQLite session, export a gotd JSON session instead")
	}
	if dir := filepath.Dir(c.Telegram.SessionFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := os.WriteFile(c.Telegram.SessionFile, raw, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Secrets lists every credential value that must never reach the logs.
func (c Config) Secrets() []string {
	secrets := append([]string(nil), c.Transform.Keys...)
	for _, v := range []string{
		c.Telegram.APIHash,
		c.Telegram.SessionBase64,
		c.Telegram.BotToken,
		c.Facebook.PageToken,
		c.Database.DSN,
	} {
		if v != "" {
			secrets = append(secrets, v)
		}
	}
	return secrets
}

func defaultConfig() Config {
	return Config{
		Sources: SourceConfig{
			Strategy:         "mtproto",
			Limit:            10,
			MinContentLength: 100,
			PreviewBaseURL:   "https://t.me/s/",
		},
		Telegram: TelegramConfig{
			SessionFile:   "user_session.session",
			Enabled:       true,
			PublishThread: true,
		},
		Facebook: FacebookConfig{
			GraphURL: "https://graph.facebook.com/v19.0",
		},
		Transform: TransformConfig{
			Provider:      "openai",
			RotationDelay: 2 * time.Second,
			SegmentPolicy: "truncate",
		},
		ChatGPT: ChatGPTConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
			Timeout:  90 * time.Second,
		},
		Gemini: GeminiConfig{Model: "gemini-1.5-flash"},
		Pipeline: PipelineConfig{
			Mode:           "bilingual",
			SuccessPolicy:  "any",
			StagePause:     5 * time.Second,
			MediaDir:       os.TempDir(),
			PublishRetries: 3,
			PublishBackoff: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "bot.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{Job: "channelrelay"},
		OTEL: OTELConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "channelrelay",
			SampleRatio: 1.0,
		},
	}
}

func numberedKeys(prefix string) []string {
	var keys []string
	if v := strings.TrimSpace(os.Getenv(prefix)); v != "" {
		keys = append(keys, v)
	}
	for i := 2; i <= maxNumberedKey; i++ {
		if v := strings.TrimSpace(os.Getenv(prefix + "_" + strconv.Itoa(i))); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
