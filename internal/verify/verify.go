// Package verify checks a running container of the published image: the
// seed data must have been applied by the postgres entrypoint at first
// startup.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/pkg/database"
)

// Required indexes created by the seed script.
var requiredIndexes = []string{"idx_cats_name", "idx_cats_breed"}

// Cat mirrors the seeded table for sampling rows.
type Cat struct {
	ID       int `gorm:"primaryKey"`
	Name     string
	Breed    string
	Age      int
	Color    string
	WeightKg float64
	IsIndoor bool
}

// TableName maps Cat onto the seeded table.
func (Cat) TableName() string {
	return "cats"
}

// Result summarizes the state of the seeded database.
type Result struct {
	TableExists    bool     `json:"table_exists"`
	RowCount       int64    `json:"row_count"`
	Indexes        []string `json:"indexes"`
	MissingIndexes []string `json:"missing_indexes"`
	Sample         []Cat    `json:"sample"`
}

// OK reports whether the seed was applied completely.
func (r *Result) OK() bool {
	return r.TableExists && r.RowCount > 0 && len(r.MissingIndexes) == 0
}

// Run connects to the database at dsn and verifies schema, rows and indexes.
func Run(ctx context.Context, dsn string) (*Result, error) {
	db, err := database.OpenPostgres(dsn)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := database.Close(db); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close verification connection")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result := &Result{}

	result.TableExists = db.WithContext(ctx).Migrator().HasTable(&Cat{})
	if !result.TableExists {
		return result, nil
	}

	if err := db.WithContext(ctx).Model(&Cat{}).Count(&result.RowCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count seeded rows: %w", err)
	}

	var indexes []string
	if err := db.WithContext(ctx).
		Raw("SELECT indexname FROM pg_indexes WHERE tablename = ?", "cats").
		Scan(&indexes).Error; err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}
	result.Indexes = indexes

	present := make(map[string]bool, len(indexes))
	for _, name := range indexes {
		present[name] = true
	}
	for _, required := range requiredIndexes {
		if !present[required] {
			result.MissingIndexes = append(result.MissingIndexes, required)
		}
	}

	if err := db.WithContext(ctx).Order("id").Limit(5).Find(&result.Sample).Error; err != nil {
		return nil, fmt.Errorf("failed to sample seeded rows: %w", err)
	}

	log.Info().
		Int64("rows", result.RowCount).
		Int("indexes", len(result.Indexes)).
		Bool("ok", result.OK()).
		Msg("Seed verification completed")

	return result, nil
}
