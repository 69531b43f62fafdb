package regions

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"github.com/classpeak/searchcore/internal/domain"
)

// This file adapts the gorm models onto the resolver's domain contracts.

// ExactRegion returns the region whose name matches exactly.
func (r *Repo) ExactRegion(ctx context.Context, name, regionCode string) (*domain.Region, error) {
	row, err := r.FindByExactName(ctx, name, regionCode)
	if err != nil {
		return nil, err
	}
	return toDomain(row), nil
}

// BoroughRegion returns any region inside the named borough.
func (r *Repo) BoroughRegion(ctx context.Context, borough, regionCode string) (*domain.Region, error) {
	row, err := r.FindByBorough(ctx, borough, regionCode)
	if err != nil {
		return nil, err
	}
	return toDomain(row), nil
}

// SubstringRegions returns regions whose name contains the fragment.
func (r *Repo) SubstringRegions(ctx context.Context, fragment, regionCode string) ([]domain.Region, error) {
	rows, err := r.FindBySubstring(ctx, fragment, regionCode)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Region, 0, len(rows))
	for i := range rows {
		out = append(out, *toDomain(&rows[i]))
	}
	return out, nil
}

// AllRegions returns every region in a market.
func (r *Repo) AllRegions(ctx context.Context, regionCode string) ([]domain.Region, error) {
	rows, err := r.All(ctx, regionCode)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Region, 0, len(rows))
	for i := range rows {
		out = append(out, *toDomain(&rows[i]))
	}
	return out, nil
}

// ActiveAlias returns the active alias entry for a normalized text, or
// (nil, nil) when none exists. Rows pending review are not served here.
func (r *Repo) ActiveAlias(ctx context.Context, normalized, regionCode string) (*domain.AliasEntry, error) {
	return r.aliasEntry(ctx, normalized, regionCode, AliasStatusActive)
}

// LLMAlias returns a previously cached LLM resolution regardless of review
// status, or (nil, nil) when none exists.
func (r *Repo) LLMAlias(ctx context.Context, normalized, regionCode string) (*domain.AliasEntry, error) {
	return r.aliasEntry(ctx, normalized, regionCode, "")
}

func (r *Repo) aliasEntry(ctx context.Context, normalized, regionCode, status string) (*domain.AliasEntry, error) {
	row, err := r.GetAlias(ctx, normalized, regionCode)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if status != "" && row.Status != status {
		return nil, nil
	}
	if status == "" && row.Source != AliasSourceLLM {
		return nil, nil
	}

	entry := &domain.AliasEntry{Confidence: row.Confidence}
	if row.RegionID != nil {
		region, err := r.byID(ctx, *row.RegionID)
		if err != nil {
			return nil, err
		}
		entry.RegionID = region.ID
		entry.RegionName = region.Name
		entry.Borough = region.Borough
		return entry, nil
	}
	for _, id := range row.CandidateIDs {
		region, err := r.byID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		entry.Candidates = append(entry.Candidates, domain.LocationCandidate{
			RegionID:   region.ID,
			RegionName: region.Name,
		})
	}
	return entry, nil
}

// SaveLLMAlias caches an LLM resolution as a pending-review alias row.
func (r *Repo) SaveLLMAlias(
	ctx context.Context, normalized, regionCode string,
	regionID string, candidateIDs []string, confidence float64,
) error {
	alias := &LocationAlias{
		Normalized:   normalized,
		RegionCode:   regionCode,
		CandidateIDs: candidateIDs,
		Source:       AliasSourceLLM,
		Status:       AliasStatusPendingReview,
		Confidence:   confidence,
	}
	if regionID != "" {
		alias.RegionID = &regionID
	}
	return r.UpsertAlias(ctx, alias)
}

func (r *Repo) byID(ctx context.Context, id string) (*Region, error) {
	var region Region
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("region by id: %w", err)
	}
	return &region, nil
}

func toDomain(row *Region) *domain.Region {
	return &domain.Region{
		ID:         row.ID,
		Name:       row.Name,
		Borough:    row.Borough,
		Lat:        row.Lat,
		Lng:        row.Lng,
		NameVector: decodeVector(row.NameEmbedding),
	}
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec
}
