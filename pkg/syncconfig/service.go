package syncconfig

import (
	"context"
	"database/sql"
	"time"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// CalculateNextSyncTime adds the frequency interval to lastSync. Unknown
// frequencies fall back to daily.
func CalculateNextSyncTime(lastSync time.Time, frequency string) time.Time {
	switch frequency {
	case models.SyncFrequencyHourly:
		return lastSync.Add(time.Hour)
	case models.SyncFrequency6Hours:
		return lastSync.Add(6 * time.Hour)
	case models.SyncFrequency12Hours:
		return lastSync.Add(12 * time.Hour)
	default:
		return lastSync.Add(24 * time.Hour)
	}
}

type Service struct {
	db  *bun.DB
	now func() time.Time
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func getConfig(ctx context.Context, db bun.IDB, companyID string) (*models.SyncConfig, error) {
	cfg := &models.SyncConfig{}
	err := db.NewSelect().
		Model(cfg).
		Where("qsc.company_id = ?", companyID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}

// SaveConfig stores prefs for the company, creating the record if needed.
// lastSyncTime is optional; without it the stored one is kept. The next sync
// time is always derived again from the resulting last sync time and
// frequency.
func (svc *Service) SaveConfig(ctx context.Context, companyID string, prefs models.SyncPreferences, lastSyncTime *time.Time) (*models.SyncConfig, error) {
	var cfg *models.SyncConfig
	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		cfg, err = svc.saveConfig(ctx, tx, companyID, prefs, lastSyncTime)
		return err
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}

// RecordSync stores the outcome of a finished sync: prefs and last sync time
// as SaveConfig does, plus the run's stats. Both writes commit together.
func (svc *Service) RecordSync(ctx context.Context, companyID string, prefs models.SyncPreferences, lastSync time.Time, duration time.Duration, itemsByType map[string]int) (*models.SyncConfig, error) {
	var cfg *models.SyncConfig
	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		cfg, err = svc.saveConfig(ctx, tx, companyID, prefs, &lastSync)
		if err != nil {
			return err
		}
		stats, err := svc.updateSyncStats(ctx, tx, companyID, duration, itemsByType)
		if err != nil {
			return err
		}
		cfg.SyncStats = stats
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}

func (svc *Service) saveConfig(ctx context.Context, db bun.IDB, companyID string, prefs models.SyncPreferences, lastSyncTime *time.Time) (*models.SyncConfig, error) {
	existing, err := getConfig(ctx, db, companyID)
	if err != nil {
		return nil, err
	}

	now := svc.now().UTC()
	cfg := existing
	if cfg == nil {
		cfg = &models.SyncConfig{
			CompanyID: companyID,
			CreatedAt: now,
			SyncStats: models.SyncStats{ItemsByType: map[string]int{}},
		}
	}
	cfg.UpdatedAt = now
	cfg.Preferences = prefs
	if lastSyncTime != nil {
		t := lastSyncTime.UTC()
		cfg.LastSyncTime = &t
	}
	cfg.NextSyncTime = nil
	if cfg.LastSyncTime != nil {
		next := CalculateNextSyncTime(*cfg.LastSyncTime, prefs.SyncFrequency)
		cfg.NextSyncTime = &next
	}

	if existing == nil {
		_, err = db.NewInsert().Model(cfg).Exec(ctx)
	} else {
		_, err = db.NewUpdate().
			Model(cfg).
			Column("updated_at", "preferences", "last_sync_time", "next_sync_time").
			WherePK().
			Exec(ctx)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}

// GetConfig returns nil when the company has never saved preferences.
func (svc *Service) GetConfig(ctx context.Context, companyID string) (*models.SyncConfig, error) {
	return getConfig(ctx, svc.db, companyID)
}

// ShouldSync is true when there is no config, no next sync time, or the next
// sync time has been reached.
func (svc *Service) ShouldSync(ctx context.Context, companyID string) (bool, error) {
	cfg, err := svc.GetConfig(ctx, companyID)
	if err != nil {
		return false, err
	}
	if cfg == nil || cfg.NextSyncTime == nil {
		return true, nil
	}
	return !svc.now().Before(*cfg.NextSyncTime), nil
}

// TimeUntilNextSync is never negative. It is zero when a sync is due or the
// company has no config.
func (svc *Service) TimeUntilNextSync(ctx context.Context, companyID string) (time.Duration, error) {
	cfg, err := svc.GetConfig(ctx, companyID)
	if err != nil {
		return 0, err
	}
	if cfg == nil || cfg.NextSyncTime == nil {
		return 0, nil
	}
	remaining := cfg.NextSyncTime.Sub(svc.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// UpdateSyncStats replaces the stored stats with those of the latest run.
// Companies without a config are left alone.
func (svc *Service) UpdateSyncStats(ctx context.Context, companyID string, duration time.Duration, itemsByType map[string]int) error {
	_, err := svc.updateSyncStats(ctx, svc.db, companyID, duration, itemsByType)
	return err
}

func (svc *Service) updateSyncStats(ctx context.Context, db bun.IDB, companyID string, duration time.Duration, itemsByType map[string]int) (models.SyncStats, error) {
	stats := models.SyncStats{
		LastSyncDurationMS: duration.Milliseconds(),
		ItemsByType:        map[string]int{},
	}
	for dataType, count := range itemsByType {
		stats.ItemsByType[dataType] = count
		stats.TotalItemsSynced += count
	}

	_, err := db.NewUpdate().
		Model(&models.SyncConfig{SyncStats: stats, UpdatedAt: svc.now().UTC()}).
		Column("sync_stats", "updated_at").
		Where("company_id = ?", companyID).
		Exec(ctx)
	return stats, errors.WithStack(err)
}

// ListDue returns every config whose next sync time has passed, oldest first.
func (svc *Service) ListDue(ctx context.Context) ([]*models.SyncConfig, error) {
	var cfgs []*models.SyncConfig
	err := svc.db.NewSelect().
		Model(&cfgs).
		Where("qsc.next_sync_time IS NOT NULL").
		Where("qsc.next_sync_time <= ?", svc.now().UTC()).
		Order("qsc.next_sync_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return cfgs, nil
}
