// Package flush implements the per-tick flush engine of spec §4.6: for
// every active token, evaluate the lifecycle state machine, batch the
// metric rows of every token whose flush schedule has elapsed, write the
// batch in a single bulk insert, and apply terminal writes. Grounded on
// the check_lifecycle_and_flush/process flow of the original tracker,
// generalized into a typed per-tick driver.
package flush

import (
	"context"
	"log"
	"time"

	"tokentracker/aggregator"
	"tokentracker/database"
	"tokentracker/lifecycle"
)

// TokenEntry is one token's live tracking state as held by the engine: its
// accumulator, lifecycle schedule, and the immutable facts needed to
// evaluate transitions.
type TokenEntry struct {
	Accumulator    *aggregator.Accumulator
	CreatedAt      time.Time
	CreatorAddress string
	CurrentPhaseID int
	NextFlush      time.Time
}

// PhaseLookup resolves phase descriptors for the lifecycle state machine.
// registry.PhaseTable satisfies it.
type PhaseLookup interface {
	Get(id int) (lifecycle.Phase, bool)
	Next(id int) *lifecycle.Phase
}

// Writer is the persistence contract the engine needs each tick: a batched
// metric insert, phase-promotion writes and terminal lifecycle writes.
// database.Registry + database.DB together satisfy it via writerAdapter in
// app/.
type Writer interface {
	BulkInsertMetrics(ctx context.Context, rows []database.CoinMetric) error
	SetPhase(ctx context.Context, tokenAddress string, newPhaseID int) error
	End(ctx context.Context, tokenAddress string, graduated bool) error
}

// Counters are the telemetry increments one Tick call produces, intended
// to be folded into the health package's Prometheus counters by the
// caller.
type Counters struct {
	MetricsSaved     int
	MetricsLost      int
	CoinsGraduated   int
	CoinsFinished    int
}

// Tick runs one flush-engine pass over active, per spec §4.6: evaluate
// lifecycle for every token, batch-insert flushed metric rows, and apply
// terminal writes. It mutates active in place, removing terminal tokens.
// solReservesFull is SOL_RESERVES_FULL, ageOffsetMinutes is
// AGE_CALCULATION_OFFSET_MIN.
func Tick(
	ctx context.Context,
	now time.Time,
	active map[string]*TokenEntry,
	phases PhaseLookup,
	writer Writer,
	solReservesFull, ageOffsetMinutes float64,
) Counters {
	var counters Counters
	var batch []database.CoinMetric
	type terminalWrite struct {
		token     string
		graduated bool
	}
	var terminals []terminalWrite
	type phaseWrite struct {
		token      string
		newPhaseID int
	}
	var promotions []phaseWrite

	for token, entry := range active {
		currentPhase, ok := phases.Get(entry.CurrentPhaseID)
		if !ok {
			log.Printf("⚠️  flush: unknown phase %d for %s, skipping tick", entry.CurrentPhaseID, token)
			continue
		}
		nextPhase := phases.Next(entry.CurrentPhaseID)
		result := entry.Accumulator.Flush(solReservesFull)

		state := lifecycle.TokenState{
			CurrentPhaseID: entry.CurrentPhaseID,
			CreatedAt:      entry.CreatedAt,
			NextFlush:      entry.NextFlush,
		}
		outcome := lifecycle.Evaluate(now, state, result.BondingCurvePct, currentPhase, nextPhase, ageOffsetMinutes)

		if outcome.Terminal {
			terminals = append(terminals, terminalWrite{token: token, graduated: outcome.Graduated})
			delete(active, token)
			if outcome.Graduated {
				counters.CoinsGraduated++
			} else {
				counters.CoinsFinished++
			}
			continue
		}

		if outcome.Promoted {
			entry.CurrentPhaseID = outcome.NewPhaseID
			promotions = append(promotions, phaseWrite{token: token, newPhaseID: outcome.NewPhaseID})
		}
		entry.NextFlush = outcome.NextFlush

		if outcome.ShouldFlush && entry.Accumulator.TotalVol() > 0 {
			batch = append(batch, database.CoinMetric{
				TokenAddress:       token,
				WindowCloseTS:      now,
				PhaseIDAtTime:      entry.CurrentPhaseID,
				Open:               result.Open,
				High:               result.High,
				Low:                result.Low,
				Close:              result.Close,
				MarketCapClose:     result.MarketCapClose,
				BondingCurvePct:    result.BondingCurvePct,
				VirtualSolReserves: result.VirtualSolReserves,
				IsKingOfHill:       result.IsKingOfHill,
				TotalVol:           result.TotalVol,
				BuyVol:             result.BuyVol,
				SellVol:            result.SellVol,
				NumBuys:            result.NumBuys,
				NumSells:           result.NumSells,
				UniqueWallets:      result.UniqueWallets,
				NumMicroTrades:     result.NumMicroTrades,
				DevSoldAmount:      result.DevSoldAmount,
				MaxSingleBuy:       result.MaxSingleBuy,
				MaxSingleSell:      result.MaxSingleSell,
				NetVolume:          result.NetVolume,
				VolatilityPct:      result.VolatilityPct,
				AvgTradeSize:       result.AvgTradeSize,
				WhaleBuyVol:        result.WhaleBuyVol,
				WhaleSellVol:       result.WhaleSellVol,
				NumWhaleBuys:       result.NumWhaleBuys,
				NumWhaleSells:      result.NumWhaleSells,
				BuyPressureRatio:   result.BuyPressureRatio,
				UniqueSignerRatio:  result.UniqueSignerRatio,
			})
			entry.Accumulator.Reset()
		} else if outcome.ShouldFlush {
			// total_vol == 0: reset and reschedule, no output row (spec §4.4).
			entry.Accumulator.Reset()
		}
	}

	if len(batch) > 0 {
		if err := writer.BulkInsertMetrics(ctx, batch); err != nil {
			log.Printf("❌ flush: batch insert failed, dropping %d rows: %v", len(batch), err)
			counters.MetricsLost += len(batch)
		} else {
			counters.MetricsSaved += len(batch)
		}
	}

	for _, pw := range promotions {
		if err := writer.SetPhase(ctx, pw.token, pw.newPhaseID); err != nil {
			log.Printf("❌ flush: phase write failed for %s: %v", pw.token, err)
		}
	}

	for _, tw := range terminals {
		if err := writer.End(ctx, tw.token, tw.graduated); err != nil {
			log.Printf("❌ flush: terminal write failed for %s: %v", tw.token, err)
		}
	}

	return counters
}
