package scheduler

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"ChannelRelay/internal/ports"
)

// StagePacer spaces the external calls of one run. The first Wait returns
// immediately; each later one waits until pause has passed since the previous.
type StagePacer struct {
	limiter *rate.Limiter
}

var _ ports.Pacer = (*StagePacer)(nil)

// NewStagePacer builds a pacer; a non-positive pause disables waiting.
func NewStagePacer(pause time.Duration) *StagePacer {
	if pause <= 0 {
		return &StagePacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &StagePacer{limiter: rate.NewLimiter(rate.Every(pause), 1)}
}

// Wait blocks until the next stage may start or ctx is done.
func (p *StagePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
