package plan

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Unlimited marks a count without a cap.
const Unlimited int64 = -1

const bytesPerMB = 1024 * 1024

// Limits are per-month caps. They are derived on every request and never stored.
type Limits struct {
	DocumentsPerMonth     int64 `yaml:"documents_per_month" json:"documents_per_month"`
	SummariesPerMonth     int64 `yaml:"summaries_per_month" json:"summaries_per_month"`
	FlashcardsPerMonth    int64 `yaml:"flashcards_per_month" json:"flashcards_per_month"`
	MaxFileSizeMB         int64 `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	AIGenerationsPerMonth int64 `yaml:"ai_generations_per_month" json:"ai_generations_per_month"`
}

// MaxFileSizeBytes converts MaxFileSizeMB using binary megabytes.
func (l Limits) MaxFileSizeBytes() int64 {
	return l.MaxFileSizeMB * bytesPerMB
}

func (l Limits) validate(tier Tier) error {
	counts := map[string]int64{
		"documents_per_month":      l.DocumentsPerMonth,
		"summaries_per_month":      l.SummariesPerMonth,
		"flashcards_per_month":     l.FlashcardsPerMonth,
		"ai_generations_per_month": l.AIGenerationsPerMonth,
	}
	var errs []error
	for name, v := range counts {
		if v < 0 && v != Unlimited {
			errs = append(errs, fmt.Errorf("%s.%s must be >= 0 or %d, got %d", tier, name, Unlimited, v))
		}
	}
	if l.MaxFileSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("%s.max_file_size_mb must be > 0, got %d", tier, l.MaxFileSizeMB))
	}
	return errors.Join(errs...)
}

// Catalog holds the limit set of each tier.
type Catalog struct {
	Free Limits `yaml:"free" json:"free"`
	Pro  Limits `yaml:"pro" json:"pro"`
}

// DefaultCatalog returns the built-in limits.
func DefaultCatalog() Catalog {
	return Catalog{
		Free: Limits{
			DocumentsPerMonth:     10,
			SummariesPerMonth:     10,
			FlashcardsPerMonth:    50,
			MaxFileSizeMB:         10,
			AIGenerationsPerMonth: 20,
		},
		Pro: Limits{
			DocumentsPerMonth:     Unlimited,
			SummariesPerMonth:     Unlimited,
			FlashcardsPerMonth:    Unlimited,
			MaxFileSizeMB:         50,
			AIGenerationsPerMonth: Unlimited,
		},
	}
}

func (c Catalog) Validate() error {
	if err := errors.Join(c.Free.validate(TierFree), c.Pro.validate(TierPro)); err != nil {
		return errors.Join(ErrInvalidCatalog, err)
	}
	return nil
}

// LimitsFor returns the limits sub is entitled to at now.
func (c Catalog) LimitsFor(sub Subscription, now time.Time) Limits {
	if IsPro(sub, now) {
		return c.Pro
	}
	return c.Free
}

// ForTier returns the limits of a tier regardless of subscription state.
func (c Catalog) ForTier(t Tier) Limits {
	if t == TierPro {
		return c.Pro
	}
	return c.Free
}

// LoadCatalog reads a YAML catalog. Fields missing from the file keep their
// default values. An empty path returns the defaults.
func LoadCatalog(path string) (Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, errors.Join(ErrInvalidCatalog, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, errors.Join(ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}
