package regions

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// StringArray maps a Go string slice onto a PostgreSQL text array.
type StringArray []string

func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "{}", nil
	}
	return fmt.Sprintf("{%s}", strings.Join(s, ",")), nil
}

func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}
	switch v := value.(type) {
	case string:
		v = strings.Trim(v, "{}")
		if v == "" {
			*s = StringArray{}
			return nil
		}
		*s = StringArray(strings.Split(v, ","))
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return nil
}

// Region is one geographic unit instructors cover.
type Region struct {
	ID            string  `gorm:"primaryKey"`
	Name          string  `gorm:"index"`
	Borough       string  `gorm:"index"`
	RegionCode    string  `gorm:"index"` // market code, e.g. "nyc"
	Lat           float64
	Lng           float64
	NameEmbedding []byte // float32 LE, model-dependent; empty until embedded
}

// Alias source values.
const (
	AliasSourceCurated = "curated"
	AliasSourceCrowd   = "crowd"
	AliasSourceLLM     = "llm"
)

// Alias status values.
const (
	AliasStatusActive        = "active"
	AliasStatusPendingReview = "pending_review"
)

// LocationAlias maps a normalized free-text location onto one region, or
// onto several candidates when the alias is ambiguous.
type LocationAlias struct {
	ID           uint        `gorm:"primaryKey"`
	Normalized   string      `gorm:"uniqueIndex:idx_alias_text_region"`
	RegionCode   string      `gorm:"uniqueIndex:idx_alias_text_region"`
	RegionID     *string     // set for a single resolved region
	CandidateIDs StringArray `gorm:"type:text[]"` // set for an ambiguous alias
	Source       string
	Status       string
	Confidence   float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UnresolvedLocation is the curation ledger of texts no tier could resolve.
type UnresolvedLocation struct {
	ID         uint   `gorm:"primaryKey"`
	Text       string `gorm:"uniqueIndex:idx_unresolved_text_region"`
	RegionCode string `gorm:"uniqueIndex:idx_unresolved_text_region"`
	LastQuery  string
	Count      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
