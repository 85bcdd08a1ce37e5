package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/ports"
)

func mediaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o600); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

var (
	postTarget  = domain.PublishTarget{Name: "telegram", Kind: domain.TargetTelegram, Mode: domain.ModeLive, AttachMedia: true, Format: domain.FormatPost}
	draftTarget = domain.PublishTarget{Name: "facebook", Kind: domain.TargetFacebook, Mode: domain.ModeDraft, AttachMedia: true, Format: domain.FormatPost}
)

func TestPublishAllTargetsAreIndependent(t *testing.T) {
	t.Parallel()

	path := mediaFile(t)
	tg := &fakeDestination{name: "tg", fail: func(domain.Post, int) error {
		return &ports.StatusError{Service: "telegram", StatusCode: 400, Body: "chat not found"}
	}}
	fb := &fakeDestination{name: "fb"}
	remover := &removeCounter{}
	sleeper := &sleepRecorder{}
	pub := NewPublisher(PublisherDeps{
		Destinations: map[domain.TargetKind]ports.Destination{domain.TargetTelegram: tg, domain.TargetFacebook: fb},
		Logger:       quietLogger(),
		Backoff:      5 * time.Second,
		Sleep:        sleeper.Sleep,
		Remove:       remover.Remove,
	})

	results := pub.PublishAll(context.Background(), Delivery{
		Texts:     map[domain.Format]string{domain.FormatPost: "hello"},
		MediaPath: path,
		MediaKind: domain.MediaPhoto,
	}, []domain.PublishTarget{postTarget, draftTarget})

	require.Len(t, results, 2)
	assert.False(t, results[0].OK)
	assert.True(t, results[0].TextOnly)
	// non-temporary status stops retries, then one text-only attempt
	assert.Equal(t, 2, results[0].Attempts)
	assert.Empty(t, sleeper.waits)

	assert.True(t, results[1].OK)
	assert.Equal(t, "fb-1", results[1].Reference)
	require.Len(t, fb.posts, 1)
	assert.Equal(t, domain.ModeDraft, fb.posts[0].Mode)
	assert.Equal(t, path, fb.posts[0].MediaPath)

	assert.Equal(t, 1, remover.count(path))
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	dest := &fakeDestination{name: "tg", fail: func(_ domain.Post, call int) error {
		if call < 3 {
			return &ports.StatusError{Service: "telegram", StatusCode: 503}
		}
		return nil
	}}
	sleeper := &sleepRecorder{}
	pub := NewPublisher(PublisherDeps{
		Destinations: map[domain.TargetKind]ports.Destination{domain.TargetTelegram: dest},
		Logger:       quietLogger(),
		Backoff:      5 * time.Second,
		Sleep:        sleeper.Sleep,
	})

	results := pub.PublishAll(context.Background(), Delivery{Texts: map[domain.Format]string{domain.FormatPost: "hello"}}, []domain.PublishTarget{postTarget})
	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, 3, results[0].Attempts)
	assert.Equal(t, "tg-3", results[0].Reference)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeper.waits)
}

func TestPublishFallsBackToTextOnly(t *testing.T) {
	t.Parallel()

	path := mediaFile(t)
	dest := &fakeDestination{name: "tg", fail: func(post domain.Post, _ int) error {
		if post.MediaPath != "" {
			return errors.New("upload timed out")
		}
		return nil
	}}
	pub := NewPublisher(PublisherDeps{
		Destinations: map[domain.TargetKind]ports.Destination{domain.TargetTelegram: dest},
		Logger:       quietLogger(),
		Sleep:        (&sleepRecorder{}).Sleep,
	})

	results := pub.PublishAll(context.Background(), Delivery{
		Texts:     map[domain.Format]string{domain.FormatPost: "hello"},
		MediaPath: path,
		MediaKind: domain.MediaVideo,
	}, []domain.PublishTarget{postTarget})

	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.True(t, results[0].TextOnly)
	assert.Equal(t, 4, results[0].Attempts)
	require.Len(t, dest.posts, 4)
	assert.Equal(t, domain.MediaVideo, dest.posts[0].MediaKind)
	assert.Empty(t, dest.posts[3].MediaPath)
}

func TestPublishMissingMediaSendsText(t *testing.T) {
	t.Parallel()

	dest := &fakeDestination{name: "tg"}
	pub := NewPublisher(PublisherDeps{
		Destinations: map[domain.TargetKind]ports.Destination{domain.TargetTelegram: dest},
		Logger:       quietLogger(),
	})

	results := pub.PublishAll(context.Background(), Delivery{
		Texts:     map[domain.Format]string{domain.FormatPost: "hello"},
		MediaPath: filepath.Join(t.TempDir(), "gone.jpg"),
		MediaKind: domain.MediaPhoto,
	}, []domain.PublishTarget{postTarget})

	require.True(t, results[0].OK)
	require.Len(t, dest.posts, 1)
	assert.Empty(t, dest.posts[0].MediaPath)
}

func TestPublishRejectsEmptyTextAndUnknownKind(t *testing.T) {
	t.Parallel()

	dest := &fakeDestination{name: "tg"}
	pub := NewPublisher(PublisherDeps{
		Destinations: map[domain.TargetKind]ports.Destination{domain.TargetTelegram: dest},
		Logger:       quietLogger(),
	})

	thread := domain.PublishTarget{Name: "thread", Kind: domain.TargetTelegram, Format: domain.FormatThread}
	results := pub.PublishAll(context.Background(), Delivery{
		Texts: map[domain.Format]string{domain.FormatPost: "hello", domain.FormatThread: "   "},
	}, []domain.PublishTarget{thread, draftTarget})

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, ErrInvalidInput)
	assert.Error(t, results[1].Err)
	assert.Empty(t, dest.posts)
}

func TestCleanupRunsOncePerPath(t *testing.T) {
	t.Parallel()

	path := mediaFile(t)
	remover := &removeCounter{}
	pub := NewPublisher(PublisherDeps{
		Destinations: map[domain.TargetKind]ports.Destination{domain.TargetTelegram: &fakeDestination{name: "tg"}},
		Logger:       quietLogger(),
		Remove:       remover.Remove,
	})

	d := Delivery{Texts: map[domain.Format]string{domain.FormatPost: "hi"}, MediaPath: path, MediaKind: domain.MediaPhoto}
	pub.PublishAll(context.Background(), d, []domain.PublishTarget{postTarget})
	pub.Cleanup(path)
	pub.Cleanup("")

	assert.Equal(t, 1, remover.count(path))
}
