package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/ports"
)

const defaultBaseURL = "https://api.telegram.org"

// Telegram measures both limits in UTF-16 code units.
const (
	MessageLimit = 4096
	CaptionLimit = 1024
)

// Notifier publishes posts to a Telegram channel via the bot API.
type Notifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ ports.Destination = (*Notifier)(nil)

// Option customizes a Notifier.
type Option func(*Notifier)

// WithBaseURL points the notifier at another bot API server.
func WithBaseURL(u string) Option {
	return func(n *Notifier) { n.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: botToken,
		chatID:   normalizeChat(chatID),
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name identifies the destination in logs.
func (n *Notifier) Name() string { return "telegram-bot" }

// Publish sends the post and returns the id of the last message sent.
// Text too long for a caption follows the media as separate messages. A failure after
// the first message landed is a *ports.PartialDeliveryError carrying that message's id.
func (n *Notifier) Publish(ctx context.Context, post domain.Post) (string, error) {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return "", fmt.Errorf("telegram notifier misconfigured")
	}

	text := strings.TrimSpace(post.Text)
	var ref string
	if post.MediaPath != "" {
		caption := ""
		if UTF16Len(text) <= CaptionLimit {
			caption, text = text, ""
		}
		id, err := n.sendMedia(ctx, post.MediaPath, post.MediaKind, caption)
		if err != nil {
			return "", err
		}
		ref = id
	}

	for _, chunk := range SplitText(text, MessageLimit) {
		id, err := n.sendMessage(ctx, chunk)
		if err != nil {
			if ref != "" {
				return ref, &ports.PartialDeliveryError{Service: "telegram", Reference: ref, Err: err}
			}
			return "", err
		}
		ref = id
	}
	if ref == "" {
		return "", fmt.Errorf("telegram: nothing to send")
	}
	return ref, nil
}

func (n *Notifier) sendMessage(ctx context.Context, text string) (string, error) {
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return n.do(req)
}

func (n *Notifier) sendMedia(ctx context.Context, path string, kind domain.MediaKind, caption string) (string, error) {
	method, field := "sendDocument", "document"
	switch kind {
	case domain.MediaPhoto:
		method, field = "sendPhoto", "photo"
	case domain.MediaVideo:
		method, field = "sendVideo", "video"
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("chat_id", n.chatID)
	if caption != "" {
		_ = mw.WriteField("caption", caption)
	}
	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy media: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint(method), &body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return n.do(req)
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (n *Notifier) do(req *http.Request) (string, error) {
	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("decode telegram response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.OK {
		code := out.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		desc := out.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return "", &ports.StatusError{Service: "telegram", StatusCode: code, Body: desc}
	}
	return strconv.FormatInt(out.Result.MessageID, 10), nil
}

func (n *Notifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.botToken, method)
}

// normalizeChat turns a bare channel username into the "@name" form the bot API expects.
func normalizeChat(chat string) string {
	chat = strings.TrimSpace(chat)
	if chat == "" || strings.HasPrefix(chat, "@") || strings.HasPrefix(chat, "-") {
		return chat
	}
	if _, err := strconv.ParseInt(chat, 10, 64); err == nil {
		return chat
	}
	return "@" + chat
}

// UTF16Len counts text the way Telegram does.
func UTF16Len(text string) int {
	n := 0
	for _, r := range text {
		n += utf16.RuneLen(r)
	}
	return n
}

// SplitText cuts text into pieces of at most limit UTF-16 units, preferring paragraph
// and line breaks.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	for UTF16Len(text) > limit {
		runes := []rune(text)
		cut, units := 0, 0
		for cut < len(runes) && units+utf16.RuneLen(runes[cut]) <= limit {
			units += utf16.RuneLen(runes[cut])
			cut++
		}
		if cut == 0 {
			cut = 1
		}
		window := string(runes[:cut])
		if i := strings.LastIndex(window, "\n\n"); i > 0 {
			cut = utf8.RuneCountInString(window[:i])
		} else if i := strings.LastIndex(window, "\n"); i > 0 {
			cut = utf8.RuneCountInString(window[:i])
		}
		out = append(out, strings.TrimSpace(string(runes[:cut])))
		text = strings.TrimSpace(string(runes[cut:]))
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}
