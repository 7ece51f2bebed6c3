package database

import (
	"context"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Registry wraps the GORM handle used for active-set reads and phase/
// terminal lifecycle writes — the registry client's persistence layer
// (spec §4.3). It is a distinct concern from the raw database/sql bulk-
// insert path in connection.go/bulkinsert.go, mirroring the teacher's own
// split between a GORM-backed Database and a raw database/sql Connection.
type Registry struct {
	db *gorm.DB
}

// Connect opens a GORM connection against dsn and verifies it with a ping.
func Connect(dsn string) (*Registry, error) {
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, WrapDBError("connect", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, WrapDBError("connect", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, WrapDBError("ping", err)
	}

	log.Println("✅ Registry connected to Postgres")
	return &Registry{db: gormDB}, nil
}

// InitSchema creates the four relational tables if they do not already
// exist. In a production deployment these are normally managed by an
// external migration step; AutoMigrate here exists so the tracker can run
// standalone against a bare database, matching the teacher's
// InitSchema-does-both convention.
func (r *Registry) InitSchema() error {
	err := r.db.AutoMigrate(&DiscoveredCoin{}, &CoinStream{}, &RefCoinPhase{}, &CoinMetric{})
	if err != nil {
		return WrapDBError("init_schema", err)
	}
	log.Println("✅ Registry schema ready")
	return nil
}

// ActiveTokenRecord is the in-memory shape of a `coin_streams` row joined
// to its `discovered_coins` counterpart — spec §3's active token record.
type ActiveTokenRecord struct {
	PhaseID         int
	CreatedAt       time.Time
	StartedAt       time.Time
	CreatorAddress  string
}

// ActiveSet returns every token currently marked active, joined against the
// discovery table for created_at/creator_address. It opportunistically
// calls RepairActiveRecords first; a failure there is logged and ignored,
// per spec §4.3's "must tolerate its absence."
func (r *Registry) ActiveSet(ctx context.Context) (map[string]ActiveTokenRecord, error) {
	if err := r.RepairActiveRecords(ctx); err != nil {
		log.Printf("⚠️  repair-active-records unavailable, continuing: %v", err)
	}

	type row struct {
		TokenAddress    string
		CurrentPhaseID  int
		StartedAt       time.Time
		TokenCreatedAt  time.Time
		TraderPublicKey string
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Table("coin_streams").
		Select("coin_streams.token_address, coin_streams.current_phase_id, coin_streams.started_at, discovered_coins.token_created_at, discovered_coins.trader_public_key").
		Joins("JOIN discovered_coins ON discovered_coins.token_address = coin_streams.token_address").
		Where("coin_streams.is_active = ?", true).
		Scan(&rows).Error
	if err != nil {
		return nil, WrapDBError("active_set_read", err)
	}

	result := make(map[string]ActiveTokenRecord, len(rows))
	for _, rw := range rows {
		result[rw.TokenAddress] = ActiveTokenRecord{
			PhaseID:        rw.CurrentPhaseID,
			CreatedAt:      rw.TokenCreatedAt,
			StartedAt:      rw.StartedAt,
			CreatorAddress: rw.TraderPublicKey,
		}
	}
	return result, nil
}

// SetPhase atomically updates a token's current phase — the phase
// transition write of spec §4.3.
func (r *Registry) SetPhase(ctx context.Context, tokenAddress string, newPhaseID int) error {
	res := r.db.WithContext(ctx).
		Model(&CoinStream{}).
		Where("token_address = ?", tokenAddress).
		Update("current_phase_id", newPhaseID)
	if res.Error != nil {
		return WrapDBError("set_phase", res.Error)
	}
	if res.RowsAffected == 0 {
		return NewNotFoundErrorWithID("coin_stream", tokenAddress)
	}
	return nil
}

// End marks a token's lifecycle terminal: is_active=false, phase_id 100 if
// graduated else 99, is_graduated set accordingly — the terminal
// transition write of spec §4.3.
func (r *Registry) End(ctx context.Context, tokenAddress string, graduated bool) error {
	phaseID := PhaseFinished
	if graduated {
		phaseID = PhaseGraduated
	}

	res := r.db.WithContext(ctx).
		Model(&CoinStream{}).
		Where("token_address = ?", tokenAddress).
		Updates(map[string]any{
			"is_active":        false,
			"current_phase_id": phaseID,
			"is_graduated":     graduated,
		})
	if res.Error != nil {
		return WrapDBError("terminal_write", res.Error)
	}
	return nil
}

// RepairActiveRecords calls an optional stored procedure that backfills
// missing active records from the discovery table. Not every deployment
// defines it; a missing-function error is treated as "not available," not
// a hard failure, per spec §4.3.
func (r *Registry) RepairActiveRecords(ctx context.Context) error {
	err := r.db.WithContext(ctx).Exec("SELECT repair_active_coin_streams()").Error
	if err == nil {
		return nil
	}
	// Undefined function is expected when the hook isn't installed; treat
	// it as absence, not failure.
	if isUndefinedFunction(err) {
		return nil
	}
	return WrapDBError("repair_active_records", err)
}

func isUndefinedFunction(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "undefined function") ||
		strings.Contains(msg, "42883")
}

// PhaseDescriptor is the in-memory shape of a ref_coin_phases row.
type PhaseDescriptor struct {
	ID              int
	Name            string
	IntervalSeconds int
	MaxAgeMinutes   int
}

// LoadPhases reads the full phase descriptor table, ordered ascending by
// id, per spec §3's "real phases ordered ascending by id."
func (r *Registry) LoadPhases(ctx context.Context) ([]PhaseDescriptor, error) {
	var rows []RefCoinPhase
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, WrapDBError("load_phases", err)
	}

	descriptors := make([]PhaseDescriptor, 0, len(rows))
	for _, row := range rows {
		descriptors = append(descriptors, PhaseDescriptor{
			ID:              row.ID,
			Name:            row.Name,
			IntervalSeconds: row.IntervalSeconds,
			MaxAgeMinutes:   row.MaxAgeMinutes,
		})
	}
	return descriptors, nil
}

// SeedToken inserts a discovered_coins + coin_streams row pair so the
// tracker can be exercised end-to-end without a live discoverer — the
// cmd/seed scaffolding of spec §4.8.
func (r *Registry) SeedToken(ctx context.Context, tokenAddress, creatorAddress string, phaseID int, createdAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&DiscoveredCoin{
			TokenAddress:    tokenAddress,
			TokenCreatedAt:  createdAt,
			TraderPublicKey: creatorAddress,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&CoinStream{
			TokenAddress:   tokenAddress,
			CurrentPhaseID: phaseID,
			IsActive:       true,
			IsGraduated:    false,
			StartedAt:      createdAt,
		}).Error
	})
}

// Close releases the underlying connection pool.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
