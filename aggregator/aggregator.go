// Package aggregator implements the per-token accumulator buffer of spec
// §4.4: open/high/low/close, cumulative volumes, whale/dev-sell/micro-trade
// counters, the unique-trader set, and the derived fields computed at flush
// time. Grounded on process_trade in the original tracker, generalized
// into a typed accumulator rather than a dict of running sums.
package aggregator

import (
	"math"

	"tokentracker/trade"
)

// nominalSupply is the venue-specific nominal total supply used as a
// market-cap proxy (price * nominalSupply). Preserved unless the venue
// publishes a real per-token supply in the trade event — see spec §9.
const nominalSupply = 1_000_000_000

// microTradeThreshold is the sol_amount below which a trade counts as
// "micro" per spec §4.4.
const microTradeThreshold = 0.01

// kingOfHillThreshold is the market-cap proxy above which a token is
// flagged "king of the hill" per the GLOSSARY.
const kingOfHillThreshold = 30_000

// Accumulator holds one token's running window state. It is mutated only
// on the trade-processing and flush paths (spec §5 concurrency model), so
// it carries no internal lock — callers serialize access per token.
type Accumulator struct {
	hasOpen bool
	open    float64
	high    float64
	low     float64
	close   float64

	totalVol float64
	buyVol   float64
	sellVol  float64
	numBuys  int
	numSells int

	microTrades int
	maxBuy      float64
	maxSell     float64

	uniqueTraders map[string]struct{}

	lastVSol  float64
	lastMcap  float64

	whaleBuyVol   float64
	whaleSellVol  float64
	numWhaleBuys  int
	numWhaleSells int

	devSoldAmount float64
}

// New returns a zeroed accumulator ready to receive trades.
func New() *Accumulator {
	return &Accumulator{uniqueTraders: make(map[string]struct{})}
}

// Apply folds one trade into the accumulator, per spec §4.4. creatorAddress
// is the token's immutable creator address, used by the dev-sell test;
// whaleThreshold is the configured WHALE_THRESHOLD.
func (a *Accumulator) Apply(t trade.Trade, creatorAddress string, whaleThreshold float64) {
	price := t.Price()

	if !a.hasOpen {
		a.open = price
		a.hasOpen = true
		a.high = price
		a.low = price
	} else {
		a.high = math.Max(a.high, price)
		a.low = math.Min(a.low, price)
	}
	a.close = price

	a.totalVol += t.SolAmount

	switch t.Kind {
	case trade.Buy:
		a.numBuys++
		a.buyVol += t.SolAmount
		a.maxBuy = math.Max(a.maxBuy, t.SolAmount)
	case trade.Sell:
		a.numSells++
		a.sellVol += t.SolAmount
		a.maxSell = math.Max(a.maxSell, t.SolAmount)
	}

	if t.SolAmount >= whaleThreshold {
		switch t.Kind {
		case trade.Buy:
			a.whaleBuyVol += t.SolAmount
			a.numWhaleBuys++
		case trade.Sell:
			a.whaleSellVol += t.SolAmount
			a.numWhaleSells++
		}
	}

	if t.Kind == trade.Sell && creatorAddress != "" && t.TraderAddress == creatorAddress {
		a.devSoldAmount += t.SolAmount
	}

	if t.SolAmount < microTradeThreshold {
		a.microTrades++
	}

	a.uniqueTraders[t.TraderAddress] = struct{}{}
	a.lastVSol = t.VirtualSolReserves
	a.lastMcap = price * nominalSupply
}

// TotalVol reports the accumulator's cumulative volume, used by the flush
// engine to decide whether a window produced any activity at all.
func (a *Accumulator) TotalVol() float64 {
	return a.totalVol
}

// Reset zeroes the accumulator in place so it can be reused for the next
// window. The unique-trader set is replaced by a new map presized to the
// previous window's trader count.
func (a *Accumulator) Reset() {
	hadCap := len(a.uniqueTraders)
	*a = Accumulator{uniqueTraders: make(map[string]struct{}, hadCap)}
}

// FlushResult is the accumulator's derived-metrics snapshot at flush time —
// everything the database.CoinMetric row needs except token identity and
// phase/timestamp context, which the flush engine attaches.
type FlushResult struct {
	Open, High, Low, Close float64

	MarketCapClose     float64
	BondingCurvePct    float64
	VirtualSolReserves float64
	IsKingOfHill       bool

	TotalVol, BuyVol, SellVol float64

	NumBuys, NumSells, UniqueWallets, NumMicroTrades int

	DevSoldAmount, MaxSingleBuy, MaxSingleSell float64

	NetVolume, VolatilityPct, AvgTradeSize float64

	WhaleBuyVol, WhaleSellVol       float64
	NumWhaleBuys, NumWhaleSells     int
	BuyPressureRatio, UniqueSignerRatio float64
}

// Flush computes the derived metrics of spec §4.4 from the accumulator's
// current state. solReservesFull is SOL_RESERVES_FULL. It does not reset
// the accumulator; callers decide that separately (an aggregator with
// TotalVol() == 0 should not be flushed at all).
func (a *Accumulator) Flush(solReservesFull float64) FlushResult {
	denom := a.numBuys + a.numSells

	result := FlushResult{
		Open:  a.open,
		High:  a.high,
		Low:   a.low,
		Close: a.close,

		MarketCapClose:     a.lastMcap,
		BondingCurvePct:    a.lastVSol / solReservesFull * 100,
		VirtualSolReserves: a.lastVSol,
		IsKingOfHill:       a.lastMcap > kingOfHillThreshold,

		TotalVol: a.totalVol,
		BuyVol:   a.buyVol,
		SellVol:  a.sellVol,

		NumBuys:        a.numBuys,
		NumSells:       a.numSells,
		UniqueWallets:  len(a.uniqueTraders),
		NumMicroTrades: a.microTrades,

		DevSoldAmount: a.devSoldAmount,
		MaxSingleBuy:  a.maxBuy,
		MaxSingleSell: a.maxSell,

		NetVolume: a.buyVol - a.sellVol,

		WhaleBuyVol:   a.whaleBuyVol,
		WhaleSellVol:  a.whaleSellVol,
		NumWhaleBuys:  a.numWhaleBuys,
		NumWhaleSells: a.numWhaleSells,
	}

	if a.open > 0 {
		result.VolatilityPct = (a.high - a.low) / a.open * 100
	}
	if denom > 0 {
		result.AvgTradeSize = a.totalVol / float64(denom)
		result.UniqueSignerRatio = float64(len(a.uniqueTraders)) / float64(denom)
	}
	if a.buyVol+a.sellVol > 0 {
		result.BuyPressureRatio = a.buyVol / (a.buyVol + a.sellVol)
	}

	return result
}
