package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedFile is the on-disk catalog used to populate an empty store.
type SeedFile struct {
	Instruments []SeedInstrument `yaml:"instruments"`
}

// SeedInstrument is one catalog entry in a seed file. Price is a string so
// that values keep their exact decimal form.
type SeedInstrument struct {
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Quantity int64  `yaml:"quantity"`
	Risk     int    `yaml:"risk"`
}

// DefaultSeed is the example catalog used when no seed file is configured.
func DefaultSeed() []models.Instrument {
	return []models.Instrument{
		{Name: "AAPL", Price: decimal.NewFromInt(150), Quantity: 1000, Risk: 1},
		{Name: "GOOGL", Price: decimal.NewFromInt(2800), Quantity: 500, Risk: 1},
		{Name: "MSFT", Price: decimal.NewFromInt(300), Quantity: 800, Risk: 1},
		{Name: "AMZN", Price: decimal.NewFromInt(3300), Quantity: 300, Risk: 1},
	}
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) ([]models.Instrument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML into instruments and validates each entry.
func ParseSeed(data []byte) ([]models.Instrument, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	instruments := make([]models.Instrument, 0, len(file.Instruments))
	for i, entry := range file.Instruments {
		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("instrument %d (%s): invalid price %q: %w", i, entry.Name, entry.Price, err)
		}
		inst := models.Instrument{
			Name:     entry.Name,
			Price:    price,
			Quantity: entry.Quantity,
			Risk:     models.NormalizeRisk(entry.Risk),
		}
		if err := validate(&inst, entry.Risk); err != nil {
			return nil, fmt.Errorf("instrument %d (%s): %w", i, entry.Name, err)
		}
		instruments = append(instruments, inst)
	}
	return instruments, nil
}

// Seed inserts instruments when the catalog is empty and reports how many
// were created. A non-empty catalog is left untouched.
func (s *Service) Seed(ctx context.Context, instruments []models.Instrument) (int, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Instrument{}).Count(&count).Error; err != nil {
			return database.WrapError(err)
		}
		if count > 0 {
			return nil
		}

		for i := range instruments {
			inst := instruments[i]
			if err := createInstrument(tx, &inst); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created > 0 {
		s.logger.Info("Catalog seeded", zap.Int("instruments", created))
	}
	return created, nil
}

// BackfillRisk stores risk 1 on instruments written before risk levels
// existed and reports how many rows changed.
func (s *Service) BackfillRisk(ctx context.Context) (int64, error) {
	ctx, cancel := database.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&models.Instrument{}).
		Where("risk IS NULL OR risk < ?", models.MinRisk).
		UpdateColumn("risk", models.MinRisk)
	if res.Error != nil {
		return 0, database.WrapError(res.Error)
	}

	s.logger.Info("Instrument risk backfilled", zap.Int64("updated", res.RowsAffected))
	return res.RowsAffected, nil
}
