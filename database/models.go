package database

import "time"

// DiscoveredCoin is the discovery-table row written by the external
// discoverer when it first observes a token. The tracker only ever reads
// this table (joined against coin_streams) — it never inserts here except
// via the cmd/seed scaffolding used to exercise the tracker without a live
// discoverer.
type DiscoveredCoin struct {
	TokenAddress    string    `gorm:"column:token_address;primaryKey"`
	TokenCreatedAt  time.Time `gorm:"column:token_created_at"`
	TraderPublicKey string    `gorm:"column:trader_public_key"`
}

// TableName pins the GORM table name; the struct name's pluralization
// would otherwise guess "discovered_coins" correctly, but it is made
// explicit since the tracker does not own this table's migration.
func (DiscoveredCoin) TableName() string { return "discovered_coins" }

// CoinStream is the active-token record: source of truth for phase_id,
// is_active, and is_graduated. The tracker both reads and writes this
// table.
type CoinStream struct {
	TokenAddress    string    `gorm:"column:token_address;primaryKey"`
	CurrentPhaseID  int       `gorm:"column:current_phase_id"`
	IsActive        bool      `gorm:"column:is_active"`
	IsGraduated     bool      `gorm:"column:is_graduated"`
	StartedAt       time.Time `gorm:"column:started_at"`
}

func (CoinStream) TableName() string { return "coin_streams" }

// RefCoinPhase is a row of the phase descriptor reference table, read once
// at startup and refreshable. Real phases are ordered ascending by ID;
// PhaseFinished (99) and PhaseGraduated (100) are reserved terminal ids.
type RefCoinPhase struct {
	ID              int    `gorm:"column:id;primaryKey"`
	Name            string `gorm:"column:name"`
	IntervalSeconds int    `gorm:"column:interval_seconds"`
	MaxAgeMinutes   int    `gorm:"column:max_age_minutes"`
}

func (RefCoinPhase) TableName() string { return "ref_coin_phases" }

// Reserved terminal phase ids, per spec §3.
const (
	PhaseFinished  = 99
	PhaseGraduated = 100
)

// CoinMetric is one flushed window's output row — the 30-column metric
// record of spec §3/§6. It mirrors aggregator.FlushResult field-for-field;
// kept as a distinct, GORM-tagged type so the aggregator package has no
// ORM dependency of its own.
type CoinMetric struct {
	TokenAddress   string    `gorm:"column:token_address"`
	WindowCloseTS  time.Time `gorm:"column:timestamp"`
	PhaseIDAtTime  int       `gorm:"column:phase_id_at_time"`

	Open  float64 `gorm:"column:open"`
	High  float64 `gorm:"column:high"`
	Low   float64 `gorm:"column:low"`
	Close float64 `gorm:"column:close"`

	MarketCapClose   float64 `gorm:"column:market_cap_close"`
	BondingCurvePct  float64 `gorm:"column:bonding_curve_pct"`
	VirtualSolReserves float64 `gorm:"column:virtual_sol_reserves"`
	IsKingOfHill     bool    `gorm:"column:is_king_of_hill"`

	TotalVol float64 `gorm:"column:total_vol"`
	BuyVol   float64 `gorm:"column:buy_vol"`
	SellVol  float64 `gorm:"column:sell_vol"`

	NumBuys        int `gorm:"column:num_buys"`
	NumSells       int `gorm:"column:num_sells"`
	UniqueWallets  int `gorm:"column:unique_wallets"`
	NumMicroTrades int `gorm:"column:num_micro_trades"`

	DevSoldAmount float64 `gorm:"column:dev_sold_amount"`
	MaxSingleBuy  float64 `gorm:"column:max_single_buy"`
	MaxSingleSell float64 `gorm:"column:max_single_sell"`

	NetVolume     float64 `gorm:"column:net_volume"`
	VolatilityPct float64 `gorm:"column:volatility_pct"`
	AvgTradeSize  float64 `gorm:"column:avg_trade_size"`

	WhaleBuyVol    float64 `gorm:"column:whale_buy_vol"`
	WhaleSellVol   float64 `gorm:"column:whale_sell_vol"`
	NumWhaleBuys   int     `gorm:"column:num_whale_buys"`
	NumWhaleSells  int     `gorm:"column:num_whale_sells"`

	BuyPressureRatio   float64 `gorm:"column:buy_pressure_ratio"`
	UniqueSignerRatio  float64 `gorm:"column:unique_signer_ratio"`
}

func (CoinMetric) TableName() string { return "coin_metrics" }

// metricColumns lists the coin_metrics columns in the fixed order
// BulkInsertMetrics writes them, matching the 30-column form mandated by
// spec §9's open question (token_address + timestamp + phase_id_at_time +
// 27 metric columns = 30).
var metricColumns = []string{
	"token_address", "timestamp", "phase_id_at_time",
	"open", "high", "low", "close", "market_cap_close",
	"bonding_curve_pct", "virtual_sol_reserves", "is_king_of_hill",
	"total_vol", "buy_vol", "sell_vol",
	"num_buys", "num_sells", "unique_wallets", "num_micro_trades",
	"dev_sold_amount", "max_single_buy", "max_single_sell",
	"net_volume", "volatility_pct", "avg_trade_size",
	"whale_buy_vol", "whale_sell_vol", "num_whale_buys", "num_whale_sells",
	"buy_pressure_ratio", "unique_signer_ratio",
}
