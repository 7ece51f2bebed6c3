// Package app wires every tracker component into one running process:
// config, storage, cache, the rolling buffer, the registry refresher, the
// two upstream websocket tasks, the per-token aggregator set, the flush
// engine, and the health server. Grounded on app.App's Start/shutdown shape
// from the teacher repo, generalized from its single-exchange-connection
// model to this system's dual-stream, many-tokens-at-once model.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokentracker/aggregator"
	"tokentracker/buffer"
	"tokentracker/cache"
	"tokentracker/config"
	"tokentracker/database"
	"tokentracker/flush"
	"tokentracker/health"
	"tokentracker/registry"
	"tokentracker/trade"
	"tokentracker/upstream"
)

// TrackerCore is the tracker's top-level orchestrator. It holds no
// package-level state: every collaborator is an explicit field, matching
// spec §9's "no module-level mutable globals."
type TrackerCore struct {
	cfg *config.Config

	regDB *database.Registry
	db    *database.DB
	redis *cache.RedisClient
	tc    *cache.TrackerCache

	buf       *buffer.Buffer
	refresher *registry.Refresher
	phases    *registry.PhaseTable

	tradeClient    *upstream.Client
	newTokenClient *upstream.Client
	subscribeCh    chan upstream.SubscribeRequest

	healthSrv *health.Server
	metrics   *health.Metrics

	activeMu sync.Mutex
	active   map[string]*flush.TokenEntry

	tradeConnMu    sync.Mutex
	lastTradeAt    time.Time
	lastNewTokenAt time.Time
	lastError      string
}

// New builds a TrackerCore from a loaded config. Collaborators that require
// network I/O (database, redis, websockets) are constructed in Start.
func New(cfg *config.Config) *TrackerCore {
	return &TrackerCore{
		cfg:         cfg,
		subscribeCh: make(chan upstream.SubscribeRequest, 256),
		active:      make(map[string]*flush.TokenEntry),
	}
}

// Start connects every downstream dependency, launches the background
// tasks, and blocks until a shutdown signal arrives.
func (a *TrackerCore) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("🗄️  Connecting to registry database...")
	regDB, err := database.Connect(a.cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("registry connection failed: %w", err)
	}
	a.regDB = regDB
	if err := a.regDB.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	rawConn, err := database.NewConnection(a.cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("bulk-insert connection failed: %w", err)
	}
	a.db = rawConn

	log.Println("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(envOr("REDIS_HOST", "localhost"), envOr("REDIS_PORT", "6379"), os.Getenv("REDIS_PASSWORD"))
	if a.redis == nil {
		log.Println("⚠️  Redis connection failed. Caching disabled.")
	}
	a.tc = cache.NewTrackerCache(a.redis)

	a.buf = buffer.New()
	a.refresher = registry.New(a.regDB)
	a.phases = registry.NewPhaseTable(a.regDB)
	if err := a.phases.Reload(ctx); err != nil {
		return fmt.Errorf("initial phase table load failed: %w", err)
	}
	if phases, err := a.regDB.LoadPhases(ctx); err == nil {
		_ = a.tc.PutPhases(ctx, phases)
	}

	reg := prometheus.NewRegistry()
	a.metrics = health.NewMetrics(reg)
	a.healthSrv = health.NewServer(a.cfg, a.buf, a.metrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if err := a.bootstrapActiveSet(ctx); err != nil {
		return fmt.Errorf("active set bootstrap failed: %w", err)
	}

	a.tradeClient = upstream.NewClient(a.cfg.WSURI, a.cfg.WSConnectionTimeout, a.cfg.WSPingInterval, a.cfg.WSPingTimeout)
	a.newTokenClient = upstream.NewClient(a.cfg.WSURI, a.cfg.WSConnectionTimeout, a.cfg.WSPingInterval, a.cfg.WSPingTimeout)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		upstream.RunTradeStream(ctx, a.tradeClient, a.activeTokenAddresses(), a.subscribeCh,
			a.cfg.GetWSRetryDelay(), a.cfg.GetWSMaxRetryDelay(), upstream.Handlers{
				OnTrade:     a.onTrade,
				OnMalformed: func() { a.metrics.TradesMalformed.Inc() },
			})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		upstream.RunNewTokenStream(ctx, a.newTokenClient, a.cfg.GetWSRetryDelay(), a.cfg.GetWSMaxRetryDelay(), upstream.NewTokenHandlers{
			OnNewToken:  a.onNewToken,
			OnMessage:   a.onNewTokenMessage,
			OnMalformed: func() { a.metrics.TradesMalformed.Inc() },
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		registry.Run(ctx, a.refresher, a.cfg.GetDBRefreshInterval(), a.onRegistryDiff)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runFlushLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runBufferEvictor(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runHealthSnapshotLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.healthSrv.ListenAndServe(ctx, a.cfg.HealthPort); err != nil {
			log.Printf("⚠️  health server failed: %v", err)
		}
	}()

	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// bootstrapActiveSet seeds the in-memory active set and per-token
// aggregators from the persistent store on startup, replaying any buffered
// trades is not possible yet (the buffer starts empty on process start) —
// this mirrors spec §4.3's initial load.
func (a *TrackerCore) bootstrapActiveSet(ctx context.Context) error {
	diff, err := a.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	a.applyDiff(diff)
	return nil
}

func (a *TrackerCore) onRegistryDiff(diff registry.Diff) {
	a.applyDiff(diff)
}

func (a *TrackerCore) applyDiff(diff registry.Diff) {
	a.activeMu.Lock()
	defer a.activeMu.Unlock()

	now := time.Now()
	for token, rec := range diff.Added {
		phase, ok := a.phases.Get(rec.PhaseID)
		if !ok {
			// Unknown phase id (stale registry row, or the phase table
			// hasn't caught up yet): fall back to the lowest real phase
			// rather than inventing a schedule.
			phase, ok = a.phases.First()
		}
		interval := time.Second
		if ok {
			interval = time.Duration(phase.IntervalSeconds) * time.Second
		}
		entry := &flush.TokenEntry{
			Accumulator:    aggregator.New(),
			CreatedAt:      rec.CreatedAt,
			CreatorAddress: rec.CreatorAddress,
			CurrentPhaseID: rec.PhaseID,
			NextFlush:      now.Add(interval),
		}

		windowStart := now.Add(-time.Duration(a.cfg.GetBufferSeconds()) * time.Second)
		if rec.CreatedAt.After(windowStart) {
			windowStart = rec.CreatedAt
		}
		replayed := a.buf.Replay(token, windowStart, now)
		for _, t := range replayed {
			entry.Accumulator.Apply(t, entry.CreatorAddress, a.cfg.GetWhaleThreshold())
			a.metrics.TradesFromBuffer.Inc()
		}

		a.active[token] = entry

		select {
		case a.subscribeCh <- upstream.SubscribeRequest{TokenAddress: token}:
		default:
			log.Printf("⚠️  subscribe queue full, dropping incremental subscribe for %s", token)
		}
	}
	for _, token := range diff.Removed {
		delete(a.active, token)
	}
	a.metrics.CoinsTracked.Set(float64(len(a.active)))
}

func (a *TrackerCore) activeTokenAddresses() []string {
	a.activeMu.Lock()
	defer a.activeMu.Unlock()
	tokens := make([]string, 0, len(a.active))
	for t := range a.active {
		tokens = append(tokens, t)
	}
	return tokens
}

// onNewToken is invoked by the new-token stream for every previously-unseen
// token address (spec §4.1). It has no registry record yet — the token is
// buffered so early trades aren't lost, and it becomes tracked once the
// next registry refresh discovers it.
func (a *TrackerCore) onNewToken(tokenAddress string) {
	select {
	case a.subscribeCh <- upstream.SubscribeRequest{TokenAddress: tokenAddress}:
	default:
		log.Printf("⚠️  subscribe queue full, dropping early subscribe for %s", tokenAddress)
	}
}

// onNewTokenMessage records the new-token stream as alive on every frame it
// reads, independent of whether that frame carried a previously-unseen
// token. This is the liveness signal runHealthSnapshotLoop reports.
func (a *TrackerCore) onNewTokenMessage() {
	a.tradeConnMu.Lock()
	a.lastNewTokenAt = time.Now()
	a.tradeConnMu.Unlock()
}

// onTrade is the sole write path into the buffer and the live-trade path
// into the per-token aggregators (spec §4.1/§4.2); applyDiff folds replayed
// trades in separately. Trades for tokens not yet in the active set are
// still buffered, so a late registry refresh can replay them. The
// aggregator is updated under activeMu, the same lock flush.Tick runs under.
func (a *TrackerCore) onTrade(t trade.Trade) {
	a.metrics.TradesReceived.Inc()
	a.buf.Append(t)
	a.metrics.BufferTradesTotal.Inc()

	a.tradeConnMu.Lock()
	a.lastTradeAt = time.Now()
	a.tradeConnMu.Unlock()

	a.activeMu.Lock()
	defer a.activeMu.Unlock()
	entry, ok := a.active[t.TokenAddress]
	if !ok {
		return
	}
	entry.Accumulator.Apply(t, entry.CreatorAddress, a.cfg.GetWhaleThreshold())
	a.metrics.TradesProcessed.Inc()
}

// runFlushLoop drives flush.Tick on a 1s cadence, the finest granularity
// any phase interval can specify (spec §4.6).
func (a *TrackerCore) runFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.activeMu.Lock()
			counters := flush.Tick(ctx, now, a.active, a.phases, writerAdapter{a.db, a.regDB}, a.cfg.GetSolReservesFull(), a.cfg.GetAgeOffsetMinutes())
			trackedNow := len(a.active)
			a.activeMu.Unlock()

			a.metrics.MetricsSaved.Add(float64(counters.MetricsSaved))
			a.metrics.MetricsLost.Add(float64(counters.MetricsLost))
			if counters.MetricsLost > 0 {
				a.tradeConnMu.Lock()
				a.lastError = fmt.Sprintf("dropped %d metric rows on last flush tick", counters.MetricsLost)
				a.tradeConnMu.Unlock()
			}
			for i := 0; i < counters.CoinsGraduated; i++ {
				a.metrics.CoinsGraduated.Inc()
			}
			for i := 0; i < counters.CoinsFinished; i++ {
				a.metrics.CoinsFinished.Inc()
			}
			a.metrics.CoinsTracked.Set(float64(trackedNow))
		}
	}
}

// runBufferEvictor trims entries older than the rolling window every 10s,
// per spec §4.2's bounded-memory requirement.
func (a *TrackerCore) runBufferEvictor(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Duration(a.cfg.GetBufferSeconds()) * time.Second)
			removed := a.buf.EvictOlderThan(cutoff)
			a.metrics.BufferSize.Set(float64(a.buf.Summarize().TotalTrades))
			if removed > 0 {
				_ = a.tc.PutBufferSummary(ctx, a.buf.Summarize())
			}
		}
	}
}

// runHealthSnapshotLoop pushes a fresh Snapshot to the health server every
// second so /health never blocks on tracker-internal locks.
func (a *TrackerCore) runHealthSnapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tradeConnMu.Lock()
			lastTradeAt := a.lastTradeAt
			lastNewTokenAt := a.lastNewTokenAt
			lastErr := a.lastError
			a.tradeConnMu.Unlock()

			a.activeMu.Lock()
			tracked := len(a.active)
			a.activeMu.Unlock()

			a.healthSrv.UpdateSnapshot(health.Snapshot{
				TradeConn:    health.ConnState{Connected: !lastTradeAt.IsZero() && time.Since(lastTradeAt) < 30*time.Second, LastMessageAt: lastTradeAt},
				NewTokenConn: health.ConnState{Connected: !lastNewTokenAt.IsZero() && time.Since(lastNewTokenAt) < 30*time.Second, LastMessageAt: lastNewTokenAt},
				CoinsTracked: tracked,
				LastError:    lastErr,
			})
		}
	}
}

// writerAdapter satisfies flush.Writer by pairing the raw bulk-insert
// connection with the GORM-backed registry's phase and terminal writes.
type writerAdapter struct {
	db    *database.DB
	regDB *database.Registry
}

func (w writerAdapter) BulkInsertMetrics(ctx context.Context, rows []database.CoinMetric) error {
	return w.db.BulkInsertMetrics(ctx, rows)
}

func (w writerAdapter) SetPhase(ctx context.Context, tokenAddress string, newPhaseID int) error {
	return w.regDB.SetPhase(ctx, tokenAddress, newPhaseID)
}

func (w writerAdapter) End(ctx context.Context, tokenAddress string, graduated bool) error {
	return w.regDB.End(ctx, tokenAddress, graduated)
}

// gracefulShutdown blocks for SIGINT/SIGTERM, then cancels ctx and closes
// every downstream connection with a bounded timeout, mirroring
// app.App.gracefulShutdown.
func (a *TrackerCore) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	log.Println("🛑 Shutdown signal received, initiating graceful shutdown...")

	cancel()

	done := make(chan struct{})
	go func() {
		if a.tradeClient != nil {
			_ = a.tradeClient.Close()
		}
		if a.newTokenClient != nil {
			_ = a.newTokenClient.Close()
		}
		if a.db != nil {
			_ = a.db.Close()
		}
		if a.regDB != nil {
			_ = a.regDB.Close()
		}
		if a.redis != nil {
			_ = a.redis.Close()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ Shutdown complete")
		return nil
	case <-time.After(10 * time.Second):
		log.Println("⚠️  Shutdown timed out, exiting anyway")
		return nil
	}
}
