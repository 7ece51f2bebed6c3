package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokentracker/trade"
)

func mkTrade(trader string, kind trade.Kind, solAmount, vSol, vTok float64) trade.Trade {
	return trade.Trade{
		TokenAddress:         "T",
		TraderAddress:        trader,
		Kind:                 kind,
		SolAmount:            solAmount,
		VirtualSolReserves:   vSol,
		VirtualTokenReserves: vTok,
		ReceivedAt:           time.Now(),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestS1SimpleBuySellWindow mirrors spec scenario S1.
func TestS1SimpleBuySellWindow(t *testing.T) {
	a := New()

	// price sequence 0.001, 0.002, 0.0015 via vSol/vTok ratios.
	a.Apply(mkTrade("X", trade.Buy, 0.5, 1, 1000), "", 1.0)
	a.Apply(mkTrade("Y", trade.Sell, 0.3, 2, 1000), "", 1.0)
	a.Apply(mkTrade("Z", trade.Buy, 0.2, 1.5, 1000), "", 1.0)

	res := a.Flush(85.0)

	assert.True(t, almostEqual(res.Open, 0.001))
	assert.True(t, almostEqual(res.High, 0.002))
	assert.True(t, almostEqual(res.Low, 0.001))
	assert.True(t, almostEqual(res.Close, 0.0015))
	assert.True(t, almostEqual(res.TotalVol, 1.0))
	assert.True(t, almostEqual(res.BuyVol, 0.7))
	assert.True(t, almostEqual(res.SellVol, 0.3))
	assert.Equal(t, 2, res.NumBuys)
	assert.Equal(t, 1, res.NumSells)
	assert.LessOrEqual(t, res.UniqueWallets, 3)
	assert.True(t, almostEqual(res.NetVolume, 0.4))
	assert.True(t, almostEqual(res.BuyPressureRatio, 0.7))
}

// TestS2WhaleAndDevSell mirrors spec scenario S2.
func TestS2WhaleAndDevSell(t *testing.T) {
	a := New()
	creator := "C"

	a.Apply(mkTrade("X", trade.Buy, 2.0, 10, 1000), creator, 1.0)
	a.Apply(mkTrade(creator, trade.Sell, 1.5, 9, 1000), creator, 1.0)

	res := a.Flush(85.0)

	assert.Equal(t, 1, res.NumWhaleBuys)
	assert.True(t, almostEqual(res.WhaleBuyVol, 2.0))
	assert.Equal(t, 1, res.NumWhaleSells)
	assert.True(t, almostEqual(res.WhaleSellVol, 1.5))
	assert.True(t, almostEqual(res.DevSoldAmount, 1.5))
}

func TestInvariantsHoldAcrossRandomishTrades(t *testing.T) {
	a := New()
	a.Apply(mkTrade("A", trade.Buy, 0.05, 5, 500), "", 1.0)
	a.Apply(mkTrade("B", trade.Sell, 0.02, 6, 480), "", 1.0)
	a.Apply(mkTrade("A", trade.Buy, 1.5, 4, 520), "", 1.0)

	res := a.Flush(85.0)

	require.LessOrEqual(t, res.Low, res.Open)
	require.LessOrEqual(t, res.Open, res.High)
	require.LessOrEqual(t, res.Low, res.Close)
	require.LessOrEqual(t, res.Close, res.High)
	require.True(t, almostEqual(res.BuyVol+res.SellVol, res.TotalVol))
	require.GreaterOrEqual(t, res.NumBuys, 0)
	require.GreaterOrEqual(t, res.NumSells, 0)
	require.LessOrEqual(t, res.UniqueWallets, res.NumBuys+res.NumSells)
	require.GreaterOrEqual(t, res.BuyPressureRatio, 0.0)
	require.LessOrEqual(t, res.BuyPressureRatio, 1.0)
	require.GreaterOrEqual(t, res.UniqueSignerRatio, 0.0)
	require.LessOrEqual(t, res.UniqueSignerRatio, 1.0)
	require.GreaterOrEqual(t, res.VolatilityPct, 0.0)
}

func TestMicroTradeThreshold(t *testing.T) {
	a := New()
	a.Apply(mkTrade("A", trade.Buy, 0.005, 1, 100), "", 1.0)
	a.Apply(mkTrade("B", trade.Buy, 0.02, 1, 100), "", 1.0)

	res := a.Flush(85.0)
	assert.Equal(t, 1, res.NumMicroTrades)
}

func TestSingleTradeWindowBoundary(t *testing.T) {
	a := New()
	a.Apply(mkTrade("A", trade.Buy, 0.3, 2, 200), "", 1.0)

	res := a.Flush(85.0)
	assert.Equal(t, res.Open, res.High)
	assert.Equal(t, res.High, res.Low)
	assert.Equal(t, res.Low, res.Close)
	assert.True(t, almostEqual(res.VolatilityPct, 0))
	assert.True(t, almostEqual(res.AvgTradeSize, 0.3))
}

func TestEmptyAggregatorProducesZeroVolAndNoFlushSignal(t *testing.T) {
	a := New()
	assert.True(t, almostEqual(a.TotalVol(), 0))
}

func TestZeroOpenYieldsZeroVolatility(t *testing.T) {
	a := New()
	res := a.Flush(85.0)
	assert.True(t, almostEqual(res.VolatilityPct, 0))
	assert.True(t, almostEqual(res.BuyPressureRatio, 0))
}

func TestResetClearsState(t *testing.T) {
	a := New()
	a.Apply(mkTrade("A", trade.Buy, 0.3, 2, 200), "", 1.0)
	require.Greater(t, a.TotalVol(), 0.0)

	a.Reset()
	assert.True(t, almostEqual(a.TotalVol(), 0))
	res := a.Flush(85.0)
	assert.Equal(t, 0, res.NumBuys)
}
