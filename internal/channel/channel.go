package channel

import (
	"context"
	"fmt"
	"sort"

	"ChannelRelay/internal/domain"
)

// Request carries all parameters required to read one source channel.
type Request struct {
	Channel string
	Limit   int
	Options map[string]string
}

// Fetcher captures a single strategy implementation (MTProto session, web preview, RSS).
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]domain.SourceMessage, error)
	DownloadMedia(ctx context.Context, msg domain.SourceMessage, dir string) (string, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: map[string]Fetcher{}}
}

// Register adds or replaces a fetcher implementation.
func (r *Registry) Register(fetcher Fetcher) {
	if r.fetchers == nil {
		r.fetchers = map[string]Fetcher{}
	}
	r.fetchers[fetcher.Name()] = fetcher
}

// Resolve returns a fetcher by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Fetcher, error) {
	if fetcher, ok := r.fetchers[name]; ok {
		return fetcher, nil
	}
	return nil, fmt.Errorf("fetch strategy %s is not registered", name)
}

// Names lists registered strategies in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fetchers))
	for name := range r.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
