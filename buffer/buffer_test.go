package buffer

import (
	"testing"
	"time"

	"tokentracker/trade"
)

func mkTrade(token string, at time.Time) trade.Trade {
	return trade.Trade{
		TokenAddress:         token,
		TraderAddress:        "trader1",
		Kind:                 trade.Buy,
		SolAmount:            0.5,
		VirtualSolReserves:   10,
		VirtualTokenReserves: 1000,
		ReceivedAt:           at,
	}
}

func TestAppendAndReplayChronological(t *testing.T) {
	b := New()
	base := time.Now()

	b.Append(mkTrade("T", base.Add(2*time.Second)))
	b.Append(mkTrade("T", base))
	b.Append(mkTrade("T", base.Add(1*time.Second)))

	got := b.Replay("T", base, base.Add(2*time.Second))
	if len(got) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ReceivedAt.Before(got[i-1].ReceivedAt) {
			t.Fatalf("replay not chronological at index %d", i)
		}
	}
}

func TestReplayEmptyRangeIsNoop(t *testing.T) {
	b := New()
	now := time.Now()
	b.Append(mkTrade("T", now))

	got := b.Replay("T", now.Add(time.Hour), now.Add(time.Hour))
	if len(got) != 0 {
		t.Fatalf("expected no trades in disjoint range, got %d", len(got))
	}
}

func TestEvictOlderThan(t *testing.T) {
	b := New()
	t0 := time.Now()
	b.Append(mkTrade("T", t0))

	removed := b.EvictOlderThan(t0.Add(200 * time.Second))
	if removed != 1 {
		t.Fatalf("expected 1 entry evicted, got %d", removed)
	}

	got := b.Replay("T", t0, t0.Add(200*time.Second))
	if len(got) != 0 {
		t.Fatalf("expected empty replay after eviction, got %d", len(got))
	}
}

func TestAppendCapsAtMaxEntries(t *testing.T) {
	b := New()
	base := time.Now()
	for i := 0; i < maxEntriesPerToken+10; i++ {
		b.Append(mkTrade("T", base.Add(time.Duration(i)*time.Millisecond)))
	}

	stats := b.Summarize()
	if stats.TotalTrades != maxEntriesPerToken {
		t.Fatalf("expected buffer capped at %d, got %d", maxEntriesPerToken, stats.TotalTrades)
	}
}

func TestSummarizeTop10(t *testing.T) {
	b := New()
	now := time.Now()
	for i := 0; i < 15; i++ {
		tok := "T"
		for j := 0; j < i%3+1; j++ {
			b.Append(mkTrade(tok+string(rune('A'+i)), now))
		}
	}

	stats := b.Summarize()
	if len(stats.Top10) > 10 {
		t.Fatalf("expected at most 10 entries, got %d", len(stats.Top10))
	}
}
