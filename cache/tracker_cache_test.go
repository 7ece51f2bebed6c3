package cache

import (
	"context"
	"testing"
)

func TestTrackerCacheDegradesToMissWithoutRedis(t *testing.T) {
	c := NewTrackerCache(nil)
	ctx := context.Background()

	if err := c.PutPhases(ctx, nil); err != nil {
		t.Fatalf("expected nil-redis PutPhases to be a no-op, got %v", err)
	}
	if _, ok := c.Phases(ctx); ok {
		t.Fatal("expected a miss when redis is nil")
	}
	if _, ok := c.BufferSummary(ctx); ok {
		t.Fatal("expected a miss when redis is nil")
	}
}
