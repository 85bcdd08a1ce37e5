package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ChannelRelay/internal/channel"
	"ChannelRelay/internal/domain"
)

const defaultPreviewURL = "https://t.me/s/"

var backgroundExpr = regexp.MustCompile(`url\(['"]?([^'")]+)['"]?\)`)

// WebPreview reads the public preview page of a channel, no session needed.
type WebPreview struct {
	client  *http.Client
	baseURL string
}

var _ channel.Fetcher = (*WebPreview)(nil)

// NewWebPreview wires an HTTP client; baseURL defaults to the public t.me preview.
func NewWebPreview(client *http.Client, baseURL string) *WebPreview {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultPreviewURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &WebPreview{client: client, baseURL: baseURL}
}

// Name identifies the strategy inside the registry.
func (w *WebPreview) Name() string {
	return "web"
}

// Fetch returns up to req.Limit of the newest posts on the preview page, newest first.
func (w *WebPreview) Fetch(ctx context.Context, req channel.Request) ([]domain.SourceMessage, error) {
	name := strings.TrimPrefix(strings.TrimSpace(req.Channel), "@")
	if name == "" {
		return nil, fmt.Errorf("empty channel name")
	}

	doc, err := fetchDocument(ctx, w.client, w.baseURL+url.PathEscape(name))
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}

	msgs := extractMessages(doc, name)
	// the page lists posts oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if req.Limit > 0 && len(msgs) > req.Limit {
		msgs = msgs[:req.Limit]
	}
	return msgs, nil
}

// DownloadMedia fetches the photo or video URL found on the page.
func (w *WebPreview) DownloadMedia(ctx context.Context, msg domain.SourceMessage, dir string) (string, error) {
	return downloadURL(ctx, w.client, msg.Media.Ref, msg.Media.Kind, dir)
}

func extractMessages(doc *goquery.Document, channelName string) []domain.SourceMessage {
	var out []domain.SourceMessage
	doc.Find(".tgme_widget_message[data-post]").Each(func(_ int, sel *goquery.Selection) {
		if msg, ok := parseMessage(sel, channelName); ok {
			out = append(out, msg)
		}
	})
	return out
}

func parseMessage(sel *goquery.Selection, channelName string) (domain.SourceMessage, bool) {
	post, _ := sel.Attr("data-post")
	_, id, found := strings.Cut(post, "/")
	if !found || id == "" {
		return domain.SourceMessage{}, false
	}

	msg := domain.SourceMessage{
		ID:      id,
		Channel: channelName,
		Text:    messageText(sel.Find(".tgme_widget_message_text").First()),
	}

	if style, ok := sel.Find(".tgme_widget_message_photo_wrap").First().Attr("style"); ok {
		if m := backgroundExpr.FindStringSubmatch(style); m != nil {
			msg.Media = domain.Media{Kind: domain.MediaPhoto, Ref: m[1]}
		}
	}
	if src, ok := sel.Find("video.tgme_widget_message_video").First().Attr("src"); ok && src != "" {
		msg.Media = domain.Media{Kind: domain.MediaVideo, Ref: src}
	}

	if stamp, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, stamp); err == nil {
			msg.PostedAt = t.UTC()
		}
	}

	if msg.Text == "" && msg.Media.Kind == domain.MediaNone {
		return domain.SourceMessage{}, false
	}
	return msg, true
}

// messageText keeps line breaks that the page renders as <br>.
func messageText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	sel = sel.Clone()
	sel.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(sel.Text())
}
