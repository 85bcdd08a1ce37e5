package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStagePacerSpacesCalls(t *testing.T) {
	t.Parallel()

	pacer := NewStagePacer(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := pacer.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("first wait should not block, took %v", elapsed)
	}
	if err := pacer.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("second wait returned too early after %v", elapsed)
	}
}

func TestStagePacerDisabled(t *testing.T) {
	t.Parallel()

	pacer := NewStagePacer(0)
	for range 5 {
		if err := pacer.Wait(context.Background()); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
}

func TestStagePacerHonoursContext(t *testing.T) {
	t.Parallel()

	pacer := NewStagePacer(time.Hour)
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pacer.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
