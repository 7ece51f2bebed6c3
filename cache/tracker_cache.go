package cache

import (
	"context"
	"time"

	"tokentracker/buffer"
	"tokentracker/database"
)

const (
	phaseTableKey   = "tracker:phase_table"
	bufferTop10Key  = "tracker:buffer_summary"
	phaseTableTTL   = 5 * time.Minute
	bufferSummaryTTL = 15 * time.Second
)

// TrackerCache wraps RedisClient with the two caches this system's domain
// stack uses: the phase descriptor table (written once at startup) and the
// buffer's top-10 summary (written by the buffer evictor after it removes
// entries). The tracker itself does not read either value back; the /health
// handler computes its buffer summary directly from the buffer.
type TrackerCache struct {
	redis *RedisClient
}

// NewTrackerCache wraps an existing RedisClient. redis may be nil (Redis
// unreachable at startup); every method degrades to a cache miss in that
// case rather than failing the caller.
func NewTrackerCache(redis *RedisClient) *TrackerCache {
	return &TrackerCache{redis: redis}
}

// PutPhases caches the current phase table.
func (c *TrackerCache) PutPhases(ctx context.Context, phases []database.PhaseDescriptor) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Set(ctx, phaseTableKey, phases, phaseTableTTL)
}

// Phases returns the cached phase table, if present and unexpired.
func (c *TrackerCache) Phases(ctx context.Context) ([]database.PhaseDescriptor, bool) {
	if c.redis == nil {
		return nil, false
	}
	var phases []database.PhaseDescriptor
	if err := c.redis.Get(ctx, phaseTableKey, &phases); err != nil {
		return nil, false
	}
	return phases, true
}

// PutBufferSummary caches the rolling buffer's top-10 snapshot for
// bufferSummaryTTL.
func (c *TrackerCache) PutBufferSummary(ctx context.Context, stats buffer.Stats) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Set(ctx, bufferTop10Key, stats, bufferSummaryTTL)
}

// BufferSummary returns the cached buffer summary, if present and
// unexpired.
func (c *TrackerCache) BufferSummary(ctx context.Context) (buffer.Stats, bool) {
	if c.redis == nil {
		return buffer.Stats{}, false
	}
	var stats buffer.Stats
	if err := c.redis.Get(ctx, bufferTop10Key, &stats); err != nil {
		return buffer.Stats{}, false
	}
	return stats, true
}
