package parser

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ChannelRelay/internal/domain"
)

const userAgent = "ChannelRelay/1.0"

// maxMediaBytes caps a downloaded attachment.
const maxMediaBytes int64 = 50 << 20

func fetchDocument(ctx context.Context, client *http.Client, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", req.URL.Host, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// downloadURL stores the body of mediaURL as a temp file in dir and returns its path.
func downloadURL(ctx context.Context, client *http.Client, mediaURL string, kind domain.MediaKind, dir string) (string, error) {
	return downloadCapped(ctx, client, mediaURL, kind, dir, maxMediaBytes)
}

// downloadCapped fails instead of keeping a truncated file when the body exceeds limit bytes.
func downloadCapped(ctx context.Context, client *http.Client, mediaURL string, kind domain.MediaKind, dir string, limit int64) (string, error) {
	if mediaURL == "" {
		return "", fmt.Errorf("message has no media url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media download returned %s", resp.Status)
	}
	if resp.ContentLength > limit {
		return "", fmt.Errorf("media is %d bytes, limit %d", resp.ContentLength, limit)
	}

	f, err := os.CreateTemp(dir, "relay-*"+mediaExt(mediaURL, resp.Header.Get("Content-Type"), kind))
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	written, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write media file: %w", err)
	}
	if written > limit {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("media exceeds %d bytes", limit)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close media file: %w", err)
	}
	return f.Name(), nil
}

func mediaExt(mediaURL, contentType string, kind domain.MediaKind) string {
	if ext := path.Ext(strings.SplitN(mediaURL, "?", 2)[0]); ext != "" && len(ext) <= 5 {
		return ext
	}
	if contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	switch kind {
	case domain.MediaVideo:
		return ".mp4"
	case domain.MediaPhoto:
		return ".jpg"
	}
	return ".bin"
}
