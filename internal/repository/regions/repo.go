package regions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound signals a missing region or alias row.
var ErrNotFound = errors.New("regions: not found")

// Repo is the gorm-backed region and alias store.
type Repo struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the region tables.
func Open(dsn string) (*Repo, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Region{}, &LocationAlias{}, &UnresolvedLocation{}); err != nil {
		return nil, fmt.Errorf("migrate region tables: %w", err)
	}
	return &Repo{db: db}, nil
}

// NewWithDB wraps an existing gorm handle (test-only).
func NewWithDB(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Ping checks postgres availability.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.WithContext(ctx).DB()
	if err != nil {
		return fmt.Errorf("postgres handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// FindByExactName returns the region whose name matches exactly (case-insensitive).
func (r *Repo) FindByExactName(ctx context.Context, name, regionCode string) (*Region, error) {
	var region Region
	err := r.db.WithContext(ctx).
		Where("LOWER(name) = ? AND region_code = ?", strings.ToLower(name), regionCode).
		First(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find region by name: %w", err)
	}
	return &region, nil
}

// FindByBorough returns any region in the named borough (case-insensitive).
func (r *Repo) FindByBorough(ctx context.Context, borough, regionCode string) (*Region, error) {
	var region Region
	err := r.db.WithContext(ctx).
		Where("LOWER(borough) = ? AND region_code = ?", strings.ToLower(borough), regionCode).
		First(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find region by borough: %w", err)
	}
	return &region, nil
}

// FindBySubstring returns regions whose name contains the fragment.
func (r *Repo) FindBySubstring(ctx context.Context, fragment, regionCode string) ([]Region, error) {
	var out []Region
	err := r.db.WithContext(ctx).
		Where("name ILIKE ? AND region_code = ?", "%"+fragment+"%", regionCode).
		Order("name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("find regions by substring: %w", err)
	}
	return out, nil
}

// All returns every region in a market, embeddings included.
func (r *Repo) All(ctx context.Context, regionCode string) ([]Region, error) {
	var out []Region
	err := r.db.WithContext(ctx).
		Where("region_code = ?", regionCode).
		Order("name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return out, nil
}

// GetAlias returns the persisted alias row for a normalized text, if any.
func (r *Repo) GetAlias(ctx context.Context, normalized, regionCode string) (*LocationAlias, error) {
	var alias LocationAlias
	err := r.db.WithContext(ctx).
		Where("normalized = ? AND region_code = ?", normalized, regionCode).
		First(&alias).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get alias: %w", err)
	}
	return &alias, nil
}

// UpsertAlias inserts or replaces the alias row for (normalized, region).
func (r *Repo) UpsertAlias(ctx context.Context, alias *LocationAlias) error {
	err := r.db.WithContext(ctx).
		Where("normalized = ? AND region_code = ?", alias.Normalized, alias.RegionCode).
		Assign(map[string]any{
			"region_id":     alias.RegionID,
			"candidate_ids": alias.CandidateIDs,
			"source":        alias.Source,
			"status":        alias.Status,
			"confidence":    alias.Confidence,
		}).
		FirstOrCreate(&LocationAlias{
			Normalized: alias.Normalized,
			RegionCode: alias.RegionCode,
		}).Error
	if err != nil {
		return fmt.Errorf("upsert alias: %w", err)
	}
	return nil
}

// RecordUnresolved bumps the ledger entry for a text no tier could resolve.
func (r *Repo) RecordUnresolved(ctx context.Context, text, regionCode, lastQuery string) error {
	var row UnresolvedLocation
	err := r.db.WithContext(ctx).
		Where("text = ? AND region_code = ?", text, regionCode).
		First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = UnresolvedLocation{Text: text, RegionCode: regionCode, LastQuery: lastQuery, Count: 1}
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("create unresolved row: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("load unresolved row: %w", err)
	default:
		err = r.db.WithContext(ctx).Model(&row).
			Updates(map[string]any{"count": row.Count + 1, "last_query": lastQuery}).Error
		if err != nil {
			return fmt.Errorf("bump unresolved row: %w", err)
		}
		return nil
	}
}
