package logging

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"info":    slog.LevelInfo,
		"":        slog.LevelDebug,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHandlerRedactsSecrets(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo, scrubber([]string{"sk-live-secret-value"})))
	logger.Info("calling with sk-live-secret-value", "bot_token", "123:abc", "channel", "relay")

	out := buf.String()
	if strings.Contains(out, "sk-live-secret-value") || strings.Contains(out, "123:abc") {
		t.Fatalf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, "channel=relay") {
		t.Fatalf("regular attribute missing: %s", out)
	}
}

func TestHandlerRedactsSecretsInErrors(t *testing.T) {
	t.Parallel()

	const token = "123456:BOTTOKENSECRET"
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo, scrubber([]string{token})))

	transportErr := fmt.Errorf("do request: %w", &url.Error{
		Op:  "Post",
		URL: "https://api.telegram.org/bot" + token + "/sendMessage",
		Err: errors.New("connection refused"),
	})
	endpoint := &url.URL{Scheme: "https", Host: "api.telegram.org", Path: "/bot" + token + "/sendPhoto"}
	logger.Error("publish failed", "error", transportErr, "endpoint", endpoint, "attempt", 2)

	out := buf.String()
	if strings.Contains(out, token) {
		t.Fatalf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, "connection refused") || !strings.Contains(out, "sendPhoto") {
		t.Fatalf("error text lost: %s", out)
	}
	if !strings.Contains(out, "attempt=2") {
		t.Fatalf("regular attribute missing: %s", out)
	}
}

func TestNewWithOptionsWritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "relay.log")
	logger, closer := NewWithOptions(Options{Level: "info", File: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Info("run finished", "status", "ok")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "run finished") {
		t.Fatalf("log file missing entry: %s", raw)
	}
}
