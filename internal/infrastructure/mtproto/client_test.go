package mtproto

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChannelRelay/internal/channel"
	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/ports"
)

func photoMessage(id int) *tg.Message {
	media := &tg.MessageMediaPhoto{}
	media.SetPhoto(&tg.Photo{
		ID:            7,
		AccessHash:    8,
		FileReference: []byte{1},
		Sizes: []tg.PhotoSizeClass{
			&tg.PhotoSize{Type: "m"},
			&tg.PhotoSize{Type: "y"},
		},
	})
	m := &tg.Message{ID: id, Message: " caption ", Date: 1767225600}
	m.SetMedia(media)
	return m
}

func documentMessage(id int, doc *tg.Document) *tg.Message {
	media := &tg.MessageMediaDocument{}
	media.SetDocument(doc)
	m := &tg.Message{ID: id}
	m.SetMedia(media)
	return m
}

func TestSourceMessage(t *testing.T) {
	t.Parallel()

	msg, ok := sourceMessage(photoMessage(42), "technews")
	require.True(t, ok)
	assert.Equal(t, domain.SourceMessage{
		ID:       "42",
		Channel:  "technews",
		Text:     "caption",
		Media:    domain.Media{Kind: domain.MediaPhoto, Ref: "42"},
		PostedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, msg)

	_, ok = sourceMessage(&tg.Message{ID: 1, Message: "  "}, "technews")
	assert.False(t, ok, "empty message must be skipped")
}

func TestMediaKinds(t *testing.T) {
	t.Parallel()

	video := documentMessage(3, &tg.Document{ID: 1, MimeType: "video/mp4"})
	assert.Equal(t, domain.MediaVideo, mediaOf(video).Kind)

	doc := documentMessage(4, &tg.Document{ID: 2, MimeType: "application/pdf"})
	assert.Equal(t, domain.MediaDocument, mediaOf(doc).Kind)

	assert.Equal(t, domain.MediaNone, mediaOf(&tg.Message{ID: 5}).Kind)
}

func TestFileLocation(t *testing.T) {
	t.Parallel()

	loc, ext, ok := fileLocation(photoMessage(1))
	require.True(t, ok)
	assert.Equal(t, ".jpg", ext)
	photo, isPhoto := loc.(*tg.InputPhotoFileLocation)
	require.True(t, isPhoto)
	assert.Equal(t, "y", photo.ThumbSize)
	assert.Equal(t, int64(7), photo.ID)

	video := documentMessage(3, &tg.Document{ID: 9, AccessHash: 10, MimeType: "video/mp4"})
	loc, ext, ok = fileLocation(video)
	require.True(t, ok)
	assert.Equal(t, ".mp4", ext)
	assert.Equal(t, &tg.InputDocumentFileLocation{ID: 9, AccessHash: 10}, loc)

	_, _, ok = fileLocation(&tg.Message{ID: 2})
	assert.False(t, ok)
}

func TestSentID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "11", sentID(&tg.UpdateShortSentMessage{ID: 11}))
	assert.Equal(t, "12", sentID(&tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateMessageID{ID: 12},
	}}))
	assert.Equal(t, "13", sentID(&tg.Updates{Updates: []tg.UpdateClass{
		&tg.UpdateNewChannelMessage{Message: &tg.Message{ID: 13}},
	}}))
	assert.Empty(t, sentID(&tg.UpdatesTooLong{}))
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	var statusErr *ports.StatusError

	err := statusError(fmt.Errorf("send: %w", tgerr.New(420, "FLOOD_WAIT_5")))
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 429, statusErr.StatusCode)
	assert.True(t, statusErr.Temporary())

	err = statusError(tgerr.New(403, "CHAT_WRITE_FORBIDDEN"))
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 403, statusErr.StatusCode)
	assert.False(t, statusErr.Temporary())

	plain := errors.New("dial tcp: refused")
	assert.Same(t, plain, statusError(plain))
	assert.NoError(t, statusError(nil))
}

func TestClientRequiresSettings(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{Channel: "@relay"})
	assert.Equal(t, "mtproto", c.Name())

	_, err := c.Fetch(context.Background(), channel.Request{Channel: "technews", Limit: 1})
	assert.ErrorContains(t, err, "app id and hash")

	_, err = c.Fetch(context.Background(), channel.Request{Channel: " "})
	assert.Error(t, err)

	_, err = NewClient(Options{AppID: 1, AppHash: "h"}).Publish(context.Background(), domain.Post{Text: "hi"})
	assert.ErrorContains(t, err, "target channel")

	_, err = NewClient(Options{AppID: 1, AppHash: "h", Channel: "relay", SessionFile: t.TempDir() + "/missing.session"}).
		Publish(context.Background(), domain.Post{Text: "hi"})
	assert.ErrorContains(t, err, "session")

	_, err = NewClient(Options{AppID: 1, AppHash: "h", Channel: "relay"}).Publish(context.Background(), domain.Post{Text: "  "})
	assert.ErrorContains(t, err, "nothing to send")
}

func TestStatusErrorKeepsPartialDelivery(t *testing.T) {
	t.Parallel()

	partial := &ports.PartialDeliveryError{
		Service:   "telegram",
		Reference: "55",
		Err:       statusError(tgerr.New(500, "INTERNAL")),
	}
	err := statusError(fmt.Errorf("run: %w", partial))

	var got *ports.PartialDeliveryError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "55", got.Reference)

	var statusErr *ports.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)
}
