package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/ports"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sleepRecorder replaces real waits and remembers what was asked for.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) bool {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err() == nil
}

type fakeSource struct {
	mu       sync.Mutex
	messages map[string][]domain.SourceMessage
	errs     map[string]error
	calls    []string
}

func (f *fakeSource) Recent(_ context.Context, channel string, limit int) ([]domain.SourceMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, channel)
	if err := f.errs[channel]; err != nil {
		return nil, err
	}
	msgs := f.messages[channel]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

type genReply struct {
	text string
	err  error
}

// fakeGenerator answers with replies in order, repeating the last one, or via respond.
type fakeGenerator struct {
	mu       sync.Mutex
	replies  []genReply
	respond  func(req ports.GenerateRequest) (string, error)
	requests []ports.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req ports.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.respond != nil {
		return f.respond(req)
	}
	if len(f.replies) == 0 {
		return "", io.EOF
	}
	i := len(f.requests) - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i].text, f.replies[i].err
}

func (f *fakeGenerator) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.APIKey
	}
	return out
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeDestination struct {
	mu    sync.Mutex
	name  string
	fail  func(post domain.Post, call int) error
	posts []domain.Post
}

func (f *fakeDestination) Name() string { return f.name }

func (f *fakeDestination) Publish(_ context.Context, post domain.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	if f.fail != nil {
		if err := f.fail(post, len(f.posts)); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s-%d", f.name, len(f.posts)), nil
}

type fakeHistory struct {
	mu        sync.Mutex
	published map[string]bool
	saved     []domain.PublishedRecord
	err       error
}

func (f *fakeHistory) AlreadyPublished(_ context.Context, keys []string) (map[string]bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]bool{}
	for _, k := range keys {
		if f.published[k] {
			out[k] = true
		}
	}
	return out, nil
}

func (f *fakeHistory) SavePublished(_ context.Context, rec domain.PublishedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return nil
}

// fakeMedia writes a small file per download into dir.
type fakeMedia struct {
	err   error
	paths []string
}

func (f *fakeMedia) DownloadMedia(_ context.Context, msg domain.SourceMessage, dir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, strings.ReplaceAll(msg.Key(), "/", "_")+".jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o600); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return path, nil
}

// removeCounter wraps os.Remove and counts calls per path.
type removeCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *removeCounter) Remove(path string) error {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[path]++
	r.mu.Unlock()
	return os.Remove(path)
}

func (r *removeCounter) count(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[path]
}

func arabicPost() string {
	return "🚀 " + strings.Repeat("التقنية الحديثة تغير طريقة عملنا كل يوم ", 10) + "\n\n#تقنية #ذكاء_اصطناعي #AI"
}

func englishText(n int) string {
	base := "Researchers released a new open model that runs on laptops and phones. "
	return strings.Repeat(base, n/len(base)+1)[:n]
}
