package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ChannelRelay/internal/config"
	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/ports"
)

// Page publishes to a Facebook page feed through the Graph API.
type Page struct {
	graphURL string
	pageID   string
	token    string
	http     *http.Client
}

var _ ports.Destination = (*Page)(nil)

// NewPage creates a reusable Graph API client.
func NewPage(cfg config.FacebookConfig) *Page {
	return &Page{
		graphURL: strings.TrimRight(cfg.GraphURL, "/"),
		pageID:   cfg.PageID,
		token:    cfg.PageToken,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Name identifies the destination in logs.
func (p *Page) Name() string { return "facebook" }

type graphResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (r graphResponse) ref() string {
	if r.PostID != "" {
		return r.PostID
	}
	return r.ID
}

// Publish creates a feed post, or a photo or video post when media is attached.
// Draft mode stages the post unpublished for review.
func (p *Page) Publish(ctx context.Context, post domain.Post) (string, error) {
	if p.pageID == "" || p.token == "" || p.graphURL == "" {
		return "", fmt.Errorf("facebook page misconfigured")
	}

	var (
		resp graphResponse
		err  error
	)
	switch {
	case post.MediaPath != "" && post.MediaKind == domain.MediaPhoto:
		err = p.upload(ctx, "/photos", "caption", post, &resp)
	case post.MediaPath != "" && post.MediaKind == domain.MediaVideo:
		err = p.upload(ctx, "/videos", "description", post, &resp)
	default:
		payload := map[string]any{
			"message":      post.Text,
			"access_token": p.token,
		}
		for k, v := range draftFields(post.Mode) {
			payload[k] = v
		}
		err = p.post(ctx, "/feed", payload, &resp)
	}
	if err != nil {
		return "", err
	}
	if resp.ref() == "" {
		return "", fmt.Errorf("facebook response carries no id")
	}
	return resp.ref(), nil
}

func draftFields(mode domain.PublishMode) map[string]string {
	if mode != domain.ModeDraft {
		return nil
	}
	return map[string]string{
		"published":                "false",
		"unpublished_content_type": "DRAFT",
	}
}

func (p *Page) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req, v)
}

func (p *Page) upload(ctx context.Context, path, textField string, post domain.Post, v any) error {
	f, err := os.Open(post.MediaPath)
	if err != nil {
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("access_token", p.token)
	_ = mw.WriteField(textField, post.Text)
	for k, val := range draftFields(post.Mode) {
		_ = mw.WriteField(k, val)
	}
	part, err := mw.CreateFormFile("source", filepath.Base(post.MediaPath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy media: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(path), &body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return p.do(req, v)
}

func (p *Page) do(req *http.Request, v any) error {
	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return &ports.StatusError{Service: "facebook", StatusCode: resp.StatusCode, Body: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (p *Page) endpoint(path string) string {
	return p.graphURL + "/" + p.pageID + path
}
