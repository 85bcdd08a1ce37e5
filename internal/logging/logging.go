package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const redacted = "[redacted]"

// Options configures the rotating file and secret scrubbing.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	Secrets    []string
}

// New creates a console slog.Logger with provided level string.
func New(level string) *slog.Logger {
	return slog.New(newHandler(os.Stdout, levelFromString(level), nil))
}

// NewWithOptions logs to stdout and, when File is set, to a rotating file as well.
// The returned closer releases the file and is never nil.
func NewWithOptions(opts Options) (*slog.Logger, io.Closer) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   false,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}
	return slog.New(newHandler(out, levelFromString(opts.Level), scrubber(opts.Secrets))), closer
}

func newHandler(w io.Writer, level slog.Level, scrub *strings.Replacer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if sensitiveKey(a.Key) {
				return slog.String(a.Key, redacted)
			}
			if scrub == nil {
				return a
			}
			switch a.Value.Kind() {
			case slog.KindString:
				return slog.String(a.Key, scrub.Replace(a.Value.String()))
			case slog.KindAny:
				// errors carry request URLs, and the bot API puts its token in the path
				switch v := a.Value.Any().(type) {
				case error, fmt.Stringer:
					return slog.String(a.Key, scrub.Replace(fmt.Sprint(v)))
				}
			}
			return a
		},
	})
}

func sensitiveKey(key string) bool {
	k := strings.ToUpper(key)
	for _, marker := range []string{"API_KEY", "APIKEY", "SECRET", "TOKEN", "PASSWORD", "SESSION"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

func scrubber(secrets []string) *strings.Replacer {
	var pairs []string
	for _, s := range secrets {
		if s = strings.TrimSpace(s); len(s) >= 6 {
			pairs = append(pairs, s, redacted)
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return strings.NewReplacer(pairs...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
