package state

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alvesdmateus/image-publisher/internal/publish"
)

// Repository provides database operations for publish history.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new history repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RecordReport persists one publish report with its per-destination outcomes.
func (r *Repository) RecordReport(ctx context.Context, target publish.Target, report *publish.Report) (*PublishRecord, error) {
	record := &PublishRecord{
		ID:              uuid.New(),
		ArtifactName:    report.Artifact.Name,
		ArtifactVersion: report.Artifact.Version,
		Registry:        target.Registry,
		Namespace:       target.Namespace,
		Success:         report.Success,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
	}

	for _, outcome := range report.Outcomes {
		record.Outcomes = append(record.Outcomes, OutcomeRecord{
			ID:              uuid.New(),
			PublishRecordID: record.ID,
			Destination:     outcome.Destination.String(),
			Status:          string(outcome.Status),
			Reason:          outcome.Reason,
			Attempts:        outcome.Attempts,
			DurationMS:      outcome.Duration.Milliseconds(),
		})
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to record publish report: %w", err)
	}

	return record, nil
}

// GetRecord retrieves a publish record by ID.
func (r *Repository) GetRecord(ctx context.Context, id uuid.UUID) (*PublishRecord, error) {
	var record PublishRecord

	if err := r.db.WithContext(ctx).
		Preload("Outcomes").
		First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("publish record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get publish record: %w", err)
	}

	return &record, nil
}

// ListRecords retrieves recent publish records, newest first.
func (r *Repository) ListRecords(ctx context.Context, limit, offset int) ([]PublishRecord, error) {
	var records []PublishRecord

	query := r.db.WithContext(ctx).
		Preload("Outcomes").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)

	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list publish records: %w", err)
	}

	return records, nil
}

// ListRecordsByArtifact retrieves publish records for one artifact name.
func (r *Repository) ListRecordsByArtifact(ctx context.Context, artifactName string, limit int) ([]PublishRecord, error) {
	var records []PublishRecord

	if err := r.db.WithContext(ctx).
		Preload("Outcomes").
		Where("artifact_name = ?", artifactName).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list publish records for %s: %w", artifactName, err)
	}

	return records, nil
}
