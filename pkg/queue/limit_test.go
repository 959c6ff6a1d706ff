package queue

import (
	"sync/atomic"
	"testing"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultLimit},
		{-5, MinLimit},
		{1, 1},
		{7, 7},
		{20, 20},
		{21, MaxLimit},
		{1000, MaxLimit},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.in); got != tt.want {
			t.Errorf("ClampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLimitCache_ReadsOnceUntilInvalidated(t *testing.T) {
	var reads atomic.Int32
	var value atomic.Int32
	value.Store(4)

	c := NewLimitCache(func() int {
		reads.Add(1)
		return int(value.Load())
	})

	if got := c.Get(); got != 4 {
		t.Fatalf("Get = %d, want 4", got)
	}
	value.Store(9)
	c.Get()
	c.Get()
	if reads.Load() != 1 {
		t.Errorf("reads = %d, want 1 (cached)", reads.Load())
	}

	c.Invalidate()
	if got := c.Get(); got != 9 {
		t.Errorf("Get after invalidate = %d, want 9", got)
	}
	if reads.Load() != 2 {
		t.Errorf("reads = %d, want 2", reads.Load())
	}
}

func TestLimitCache_Defaults(t *testing.T) {
	if got := NewLimitCache(nil).Get(); got != DefaultLimit {
		t.Errorf("nil reader = %d, want %d", got, DefaultLimit)
	}
	if got := StaticLimit(50).Get(); got != MaxLimit {
		t.Errorf("StaticLimit(50) = %d, want %d", got, MaxLimit)
	}
}
