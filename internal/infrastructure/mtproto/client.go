package mtproto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"ChannelRelay/internal/channel"
	"ChannelRelay/internal/domain"
	botapi "ChannelRelay/internal/infrastructure/telegram"
	"ChannelRelay/internal/ports"
)

// Options describe the user session.
type Options struct {
	AppID       int
	AppHash     string
	SessionFile string
	// Channel is where Publish posts; source channels come with each request.
	Channel string
	Logger  *slog.Logger
}

// Client reads channel history and posts as a Telegram user over MTProto.
type Client struct {
	opts Options
}

var (
	_ channel.Fetcher   = (*Client)(nil)
	_ ports.Destination = (*Client)(nil)
)

// NewClient keeps the session settings; every call opens its own connection.
func NewClient(opts Options) *Client {
	opts.Channel = strings.TrimPrefix(strings.TrimSpace(opts.Channel), "@")
	return &Client{opts: opts}
}

// Name identifies the strategy and the destination.
func (c *Client) Name() string {
	return "mtproto"
}

// Fetch returns up to req.Limit history messages, newest first.
func (c *Client) Fetch(ctx context.Context, req channel.Request) ([]domain.SourceMessage, error) {
	name := strings.TrimPrefix(strings.TrimSpace(req.Channel), "@")
	if name == "" {
		return nil, errors.New("empty channel name")
	}

	var out []domain.SourceMessage
	err := c.run(ctx, func(ctx context.Context, api *tg.Client) error {
		history, err := c.history(ctx, api, name, 0, req.Limit)
		if err != nil {
			return err
		}
		for _, m := range history {
			if msg, ok := sourceMessage(m, name); ok {
				out = append(out, msg)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}
	return out, nil
}

// DownloadMedia refetches the message to get a fresh file reference and saves its attachment.
func (c *Client) DownloadMedia(ctx context.Context, msg domain.SourceMessage, dir string) (string, error) {
	id, err := strconv.Atoi(msg.ID)
	if err != nil {
		return "", fmt.Errorf("message id %q: %w", msg.ID, err)
	}

	var path string
	err = c.run(ctx, func(ctx context.Context, api *tg.Client) error {
		history, err := c.history(ctx, api, msg.Channel, id+1, 1)
		if err != nil {
			return err
		}
		if len(history) == 0 || history[0].ID != id {
			return fmt.Errorf("message %s not found", msg.Key())
		}

		loc, ext, ok := fileLocation(history[0])
		if !ok {
			return fmt.Errorf("message %s has no downloadable media", msg.Key())
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", msg.Channel, id, ext))
		if _, err := downloader.NewDownloader().Download(api, loc).ToPath(ctx, path); err != nil {
			return fmt.Errorf("download: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Publish posts to the configured channel. A long caption is sent as separate text messages.
// Once the first message is out, a failure comes back as *ports.PartialDeliveryError.
func (c *Client) Publish(ctx context.Context, post domain.Post) (string, error) {
	if c.opts.Channel == "" {
		return "", errors.New("mtproto: target channel is not configured")
	}
	if post.MediaPath == "" && strings.TrimSpace(post.Text) == "" {
		return "", errors.New("mtproto: nothing to send")
	}

	var ref string
	err := c.run(ctx, func(ctx context.Context, api *tg.Client) error {
		target := message.NewSender(api).Resolve(c.opts.Channel)
		text := strings.TrimSpace(post.Text)

		if post.MediaPath != "" {
			file, err := uploader.NewUploader(api).FromPath(ctx, post.MediaPath)
			if err != nil {
				return fmt.Errorf("upload %s: %w", filepath.Base(post.MediaPath), err)
			}

			var captionOpts []styling.StyledTextOption
			if text != "" && botapi.UTF16Len(text) <= botapi.CaptionLimit {
				captionOpts = append(captionOpts, styling.Plain(text))
				text = ""
			}

			var media message.MediaOption
			switch post.MediaKind {
			case domain.MediaPhoto:
				media = message.UploadedPhoto(file, captionOpts...)
			case domain.MediaVideo:
				media = message.UploadedDocument(file, captionOpts...).
					MIME("video/mp4").
					Filename(filepath.Base(post.MediaPath)).
					Video()
			default:
				media = message.UploadedDocument(file, captionOpts...).
					Filename(filepath.Base(post.MediaPath))
			}

			upd, err := target.Media(ctx, media)
			if err != nil {
				return err
			}
			ref = sentID(upd)
		}

		for _, chunk := range botapi.SplitText(text, botapi.MessageLimit) {
			upd, err := target.Text(ctx, chunk)
			if err != nil {
				if ref != "" {
					return &ports.PartialDeliveryError{Service: "telegram", Reference: ref, Err: statusError(err)}
				}
				return err
			}
			ref = sentID(upd)
		}
		return nil
	})
	if err != nil {
		var partial *ports.PartialDeliveryError
		if errors.As(err, &partial) {
			return partial.Reference, partial
		}
		return "", statusError(err)
	}
	return ref, nil
}

func (c *Client) run(ctx context.Context, fn func(ctx context.Context, api *tg.Client) error) error {
	if c.opts.AppID == 0 || c.opts.AppHash == "" {
		return errors.New("mtproto: app id and hash are required")
	}
	if _, err := os.Stat(c.opts.SessionFile); err != nil {
		return fmt.Errorf("mtproto session: %w", err)
	}

	client := telegram.NewClient(c.opts.AppID, c.opts.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: c.opts.SessionFile},
	})
	started := time.Now()
	err := client.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, client.API())
	})
	if c.opts.Logger != nil {
		c.opts.Logger.Debug("mtproto call finished", "duration", time.Since(started), "error", err)
	}
	return err
}

// history lists messages below offsetID (0 for the latest), newest first.
func (c *Client) history(ctx context.Context, api *tg.Client, name string, offsetID, limit int) ([]*tg.Message, error) {
	peer, err := message.NewSender(api).Resolve(name).AsInputPeer(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", name, statusError(err))
	}

	res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		OffsetID: offsetID,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get history: %w", statusError(err))
	}

	modified, ok := res.AsModified()
	if !ok {
		return nil, nil
	}
	var out []*tg.Message
	for _, m := range modified.GetMessages() {
		if msg, ok := m.(*tg.Message); ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

func sourceMessage(m *tg.Message, channelName string) (domain.SourceMessage, bool) {
	msg := domain.SourceMessage{
		ID:       strconv.Itoa(m.ID),
		Channel:  channelName,
		Text:     strings.TrimSpace(m.Message),
		Media:    mediaOf(m),
		PostedAt: time.Unix(int64(m.Date), 0).UTC(),
	}
	if msg.Text == "" && msg.Media.Kind == domain.MediaNone {
		return domain.SourceMessage{}, false
	}
	return msg, true
}

func mediaOf(m *tg.Message) domain.Media {
	media, ok := m.GetMedia()
	if !ok {
		return domain.Media{}
	}
	ref := strconv.Itoa(m.ID)
	switch v := media.(type) {
	case *tg.MessageMediaPhoto:
		if _, ok := v.GetPhoto(); ok {
			return domain.Media{Kind: domain.MediaPhoto, Ref: ref}
		}
	case *tg.MessageMediaDocument:
		doc, ok := v.GetDocument()
		if !ok {
			return domain.Media{}
		}
		if d, ok := doc.AsNotEmpty(); ok && strings.HasPrefix(d.MimeType, "video/") {
			return domain.Media{Kind: domain.MediaVideo, Ref: ref}
		}
		return domain.Media{Kind: domain.MediaDocument, Ref: ref}
	}
	return domain.Media{}
}

// fileLocation picks the largest photo size or the whole document.
func fileLocation(m *tg.Message) (tg.InputFileLocationClass, string, bool) {
	media, ok := m.GetMedia()
	if !ok {
		return nil, "", false
	}
	switch v := media.(type) {
	case *tg.MessageMediaPhoto:
		raw, ok := v.GetPhoto()
		if !ok {
			return nil, "", false
		}
		photo, ok := raw.AsNotEmpty()
		if !ok || len(photo.Sizes) == 0 {
			return nil, "", false
		}
		return &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     photo.Sizes[len(photo.Sizes)-1].GetType(),
		}, ".jpg", true
	case *tg.MessageMediaDocument:
		raw, ok := v.GetDocument()
		if !ok {
			return nil, "", false
		}
		doc, ok := raw.AsNotEmpty()
		if !ok {
			return nil, "", false
		}
		ext := ".bin"
		if strings.HasPrefix(doc.MimeType, "video/") {
			ext = ".mp4"
		}
		return &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}, ext, true
	}
	return nil, "", false
}

// sentID extracts the id of the message created by a send call.
func sentID(upd tg.UpdatesClass) string {
	switch u := upd.(type) {
	case *tg.UpdateShortSentMessage:
		return strconv.Itoa(u.ID)
	case *tg.Updates:
		for _, item := range u.Updates {
			switch v := item.(type) {
			case *tg.UpdateMessageID:
				return strconv.Itoa(v.ID)
			case *tg.UpdateNewChannelMessage:
				if m, ok := v.Message.(*tg.Message); ok {
					return strconv.Itoa(m.ID)
				}
			case *tg.UpdateNewMessage:
				if m, ok := v.Message.(*tg.Message); ok {
					return strconv.Itoa(m.ID)
				}
			}
		}
	}
	return ""
}

// statusError maps RPC failures onto StatusError so the publisher can tell transient from fatal.
func statusError(err error) error {
	if err == nil {
		return nil
	}
	var partial *ports.PartialDeliveryError
	if errors.As(err, &partial) {
		return err
	}
	if _, ok := tgerr.AsFloodWait(err); ok {
		return &ports.StatusError{Service: "telegram", StatusCode: http.StatusTooManyRequests, Body: err.Error()}
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return &ports.StatusError{Service: "telegram", StatusCode: rpcErr.Code, Body: rpcErr.Message}
	}
	return err
}
