package database

import (
	"context"
	"fmt"
	"strings"
)

// BulkInsertMetrics writes every row in a single multi-row INSERT statement
// against the raw database/sql connection, so a tick's worth of flushed
// windows costs one round trip regardless of how many tokens flushed (spec
// §4.6: write amplification is O(ticks), not O(tokens)). An empty rows
// slice is a no-op.
func (db *DB) BulkInsertMetrics(ctx context.Context, rows []CoinMetric) error {
	if len(rows) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO coin_metrics (")
	sb.WriteString(strings.Join(metricColumns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(metricColumns))
	placeholder := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range metricColumns {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("$%d", placeholder))
			placeholder++
		}
		sb.WriteString(")")

		args = append(args,
			row.TokenAddress, row.WindowCloseTS, row.PhaseIDAtTime,
			row.Open, row.High, row.Low, row.Close, row.MarketCapClose,
			row.BondingCurvePct, row.VirtualSolReserves, row.IsKingOfHill,
			row.TotalVol, row.BuyVol, row.SellVol,
			row.NumBuys, row.NumSells, row.UniqueWallets, row.NumMicroTrades,
			row.DevSoldAmount, row.MaxSingleBuy, row.MaxSingleSell,
			row.NetVolume, row.VolatilityPct, row.AvgTradeSize,
			row.WhaleBuyVol, row.WhaleSellVol, row.NumWhaleBuys, row.NumWhaleSells,
			row.BuyPressureRatio, row.UniqueSignerRatio,
		)
	}

	_, err := db.conn.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return WrapDBError("bulk_insert_metrics", err)
	}
	return nil
}
