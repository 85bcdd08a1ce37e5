package credential

import "testing"

func TestPoolRotation(t *testing.T) {
	t.Parallel()

	p := NewPool("key-a", " ", "key-b", "key-a", "key-c")
	if p.Len() != 3 {
		t.Fatalf("expected 3 keys, got %d", p.Len())
	}

	key, ok := p.Next()
	if !ok || key != "key-a" {
		t.Fatalf("expected key-a, got %q (%v)", key, ok)
	}

	p.Block("key-a")
	if key, _ = p.Next(); key != "key-b" {
		t.Fatalf("blocked key reused, got %q", key)
	}

	p.Block("key-b")
	p.Block("unknown")
	if key, _ = p.Next(); key != "key-c" {
		t.Fatalf("expected key-c, got %q", key)
	}
	if p.Available() != 1 {
		t.Fatalf("expected one available key, got %d", p.Available())
	}
}

func TestPoolResetsOnce(t *testing.T) {
	t.Parallel()

	p := NewPool("key-a", "key-b")
	p.Block("key-a")
	p.Block("key-b")
	if !p.Exhausted() {
		t.Fatalf("expected exhausted pool")
	}

	key, ok := p.Next()
	if !ok || key != "key-a" {
		t.Fatalf("expected reset to return first key, got %q (%v)", key, ok)
	}
	if p.Resets() != 1 || p.Available() != 2 {
		t.Fatalf("unexpected state after reset: resets=%d available=%d", p.Resets(), p.Available())
	}

	p.Block("key-a")
	p.Block("key-b")
	if key, ok = p.Next(); ok {
		t.Fatalf("second exhaustion must not reset, got %q", key)
	}
	if p.Resets() != 1 {
		t.Fatalf("expected a single reset, got %d", p.Resets())
	}
}

func TestPoolEmpty(t *testing.T) {
	t.Parallel()

	if _, ok := NewPool().Next(); ok {
		t.Fatalf("empty pool returned a key")
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview("sk-1234567890abcdef"); got != "sk-12345...cdef" {
		t.Fatalf("unexpected preview: %s", got)
	}
	if got := Preview("short"); got != "***" {
		t.Fatalf("unexpected preview for short key: %s", got)
	}
}
