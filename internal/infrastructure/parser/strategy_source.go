package parser

import (
	"context"
	"fmt"
	"log/slog"

	"ChannelRelay/internal/channel"
	"ChannelRelay/internal/domain"
	"ChannelRelay/internal/ports"
)

// StrategySource implements MessageSource via registered fetch strategies.
type StrategySource struct {
	registry *channel.Registry
	strategy string
	feeds    map[string]string
	logger   *slog.Logger
}

var (
	_ ports.MessageSource = (*StrategySource)(nil)
	_ ports.MediaFetcher  = (*StrategySource)(nil)
)

// NewStrategySource wires the registry with the configured default strategy and feed addresses.
func NewStrategySource(reg *channel.Registry, strategy string, feeds map[string]string, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		strategy: strategy,
		feeds:    feeds,
		logger:   log,
	}
}

// Recent reads one channel with the default strategy and tags every message with it.
func (s *StrategySource) Recent(ctx context.Context, channelName string, limit int) ([]domain.SourceMessage, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("fetch registry is not configured")
	}

	fetcher, err := s.registry.Resolve(s.strategy)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", channelName, err)
	}

	req := channel.Request{Channel: channelName, Limit: limit}
	if feed := s.feeds[channelName]; feed != "" {
		req.Options = map[string]string{FeedURLOption: feed}
	}

	s.debug("fetch channel", "channel", channelName, "strategy", fetcher.Name(), "limit", limit)
	msgs, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", channelName, err)
	}

	for i := range msgs {
		if msgs[i].Channel == "" {
			msgs[i].Channel = channelName
		}
		msgs[i].Strategy = fetcher.Name()
	}
	s.debug("channel produced messages", "channel", channelName, "count", len(msgs))
	return msgs, nil
}

// DownloadMedia hands the message back to the strategy that produced it.
func (s *StrategySource) DownloadMedia(ctx context.Context, msg domain.SourceMessage, dir string) (string, error) {
	if s.registry == nil {
		return "", fmt.Errorf("fetch registry is not configured")
	}
	name := msg.Strategy
	if name == "" {
		name = s.strategy
	}
	fetcher, err := s.registry.Resolve(name)
	if err != nil {
		return "", err
	}
	path, err := fetcher.DownloadMedia(ctx, msg, dir)
	if err != nil {
		return "", fmt.Errorf("download media of %s: %w", msg.Key(), err)
	}
	return path, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
