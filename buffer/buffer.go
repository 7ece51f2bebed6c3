// Package buffer implements the rolling per-token trade buffer: an
// append-only, time-windowed store of every trade received for a token,
// regardless of whether that token is in the active set yet. It exists so
// that trades observed between a token's creation and its activation are
// not lost — grounded on the trade_buffer map in the original tracker and
// generalized with the replay-under-concurrent-append discipline used by
// FIX/NATS-style replay buffers.
package buffer

import (
	"sort"
	"sync"
	"time"

	"tokentracker/trade"
)

// maxEntriesPerToken caps memory per token; at the default 180s window this
// is far more than any single token should see, matching the original
// tracker's cap (~27 trades/sec sustained).
const maxEntriesPerToken = 5000

type entry struct {
	receivedAt time.Time
	trade      trade.Trade
}

// Buffer is the rolling trade buffer. It is safe for concurrent use: socket
// readers call Append, the evictor calls EvictOlderThan, and the registry
// refresher calls Replay — all potentially concurrently.
type Buffer struct {
	mu      sync.Mutex
	byToken map[string][]entry
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{byToken: make(map[string][]entry)}
}

// Append records a trade under its token address. If the per-token sequence
// exceeds maxEntriesPerToken, the oldest entries are dropped (keep tail).
func (b *Buffer) Append(t trade.Trade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := append(b.byToken[t.TokenAddress], entry{receivedAt: t.ReceivedAt, trade: t})
	if len(seq) > maxEntriesPerToken {
		seq = append([]entry(nil), seq[len(seq)-maxEntriesPerToken:]...)
	}
	b.byToken[t.TokenAddress] = seq
}

// EvictOlderThan removes every entry with receivedAt <= cutoff across all
// tokens, dropping tokens left with an empty sequence. It returns the total
// number of entries removed, intended for a telemetry counter.
func (b *Buffer) EvictOlderThan(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for token, seq := range b.byToken {
		kept := seq[:0:0]
		for _, e := range seq {
			if e.receivedAt.After(cutoff) {
				kept = append(kept, e)
			}
		}
		removed += len(seq) - len(kept)
		if len(kept) == 0 {
			delete(b.byToken, token)
			continue
		}
		b.byToken[token] = kept
	}
	return removed
}

// Replay returns every trade recorded for token with fromTS <= receivedAt <=
// toTS, in ascending chronological order. It copies the relevant entries
// under the lock so the result is a stable snapshot unaffected by concurrent
// Append calls that race with the caller's iteration.
func (b *Buffer) Replay(token string, fromTS, toTS time.Time) []trade.Trade {
	b.mu.Lock()
	seq := b.byToken[token]
	snapshot := make([]entry, len(seq))
	copy(snapshot, seq)
	b.mu.Unlock()

	result := make([]trade.Trade, 0, len(snapshot))
	for _, e := range snapshot {
		if !e.receivedAt.Before(fromTS) && !e.receivedAt.After(toTS) {
			result = append(result, e.trade)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result
}

// Stats summarizes current buffer occupancy for the /health endpoint.
type Stats struct {
	TotalTrades    int
	TokensBuffered int
	Top10          []TokenCount
}

// TokenCount pairs a token address with its current buffer entry count.
type TokenCount struct {
	TokenAddress string
	Count        int
}

// Summarize returns the buffer-summary fields the health endpoint reports:
// total buffered trades, tokens with any buffer entries, and the top 10
// tokens by buffer size.
func (b *Buffer) Summarize() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{TokensBuffered: len(b.byToken)}
	counts := make([]TokenCount, 0, len(b.byToken))
	for token, seq := range b.byToken {
		stats.TotalTrades += len(seq)
		counts = append(counts, TokenCount{TokenAddress: token, Count: len(seq)})
	}

	sort.Slice(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > 10 {
		counts = counts[:10]
	}
	stats.Top10 = counts
	return stats
}
