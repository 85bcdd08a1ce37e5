package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"ChannelRelay/internal/channel"
	"ChannelRelay/internal/domain"
)

// FeedURLOption is the request option carrying the feed address of a channel.
const FeedURLOption = "feed_url"

// RSSFeed reads RSS and Atom feeds as source channels.
type RSSFeed struct {
	client *http.Client
	fp     *gofeed.Parser
}

var _ channel.Fetcher = (*RSSFeed)(nil)

// NewRSSFeed wires an HTTP client and a feed parser.
func NewRSSFeed(client *http.Client) *RSSFeed {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSFeed{client: client, fp: gofeed.NewParser()}
}

// Name identifies the strategy inside the registry.
func (f *RSSFeed) Name() string {
	return "rss"
}

// Fetch returns up to req.Limit items, newest first.
func (f *RSSFeed) Fetch(ctx context.Context, req channel.Request) ([]domain.SourceMessage, error) {
	feedURL := req.Options[FeedURLOption]
	if feedURL == "" && (strings.HasPrefix(req.Channel, "http://") || strings.HasPrefix(req.Channel, "https://")) {
		feedURL = req.Channel
	}
	if feedURL == "" {
		return nil, fmt.Errorf("channel %s has no feed url", req.Channel)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("feed %s: want 200, got %d: %s", feedURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	feed, err := f.fp.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	items := append([]*gofeed.Item(nil), feed.Items...)
	sort.SliceStable(items, func(i, j int) bool {
		return itemTime(items[i]).After(itemTime(items[j]))
	})
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}

	msgs := make([]domain.SourceMessage, 0, len(items))
	for _, item := range items {
		msgs = append(msgs, itemMessage(item, req.Channel))
	}
	return msgs, nil
}

// DownloadMedia fetches the enclosure or image of an item.
func (f *RSSFeed) DownloadMedia(ctx context.Context, msg domain.SourceMessage, dir string) (string, error) {
	return downloadURL(ctx, f.client, msg.Media.Ref, msg.Media.Kind, dir)
}

func itemMessage(item *gofeed.Item, channelName string) domain.SourceMessage {
	id := item.GUID
	if id == "" {
		id = item.Link
	}

	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	text := strings.TrimSpace(item.Title)
	if plain := stripHTML(body); plain != "" && plain != text {
		if text != "" {
			text += "\n\n"
		}
		text += plain
	}

	return domain.SourceMessage{
		ID:       id,
		Channel:  channelName,
		Text:     text,
		Media:    itemMedia(item),
		PostedAt: itemTime(item),
	}
}

func itemMedia(item *gofeed.Item) domain.Media {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		switch {
		case strings.HasPrefix(enc.Type, "image/"):
			return domain.Media{Kind: domain.MediaPhoto, Ref: enc.URL}
		case strings.HasPrefix(enc.Type, "video/"):
			return domain.Media{Kind: domain.MediaVideo, Ref: enc.URL}
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return domain.Media{Kind: domain.MediaPhoto, Ref: item.Image.URL}
	}
	return domain.Media{}
}

func itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return time.Time{}
}

// stripHTML turns an HTML fragment into plain text with paragraph breaks.
func stripHTML(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
