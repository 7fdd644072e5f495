package state

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PublishRecord is one publish run: an artifact pushed against a set of
// destinations, with the aggregated success flag.
type PublishRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	ArtifactName    string    `gorm:"not null;index"`
	ArtifactVersion string    `gorm:"not null"`
	Registry        string    `gorm:"not null"`
	Namespace       string    `gorm:"not null"`
	Success         bool      `gorm:"not null"`
	StartedAt       time.Time
	FinishedAt      time.Time
	CreatedAt       time.Time

	Outcomes []OutcomeRecord `gorm:"foreignKey:PublishRecordID"`
}

// OutcomeRecord is the terminal state of one destination within a run.
type OutcomeRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	PublishRecordID uuid.UUID `gorm:"type:uuid;not null;index"`
	Destination     string    `gorm:"not null"`
	Status          string    `gorm:"not null"`
	Reason          string
	Attempts        int
	DurationMS      int64
	CreatedAt       time.Time
}

// AutoMigrate runs database migrations.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PublishRecord{},
		&OutcomeRecord{},
	)
}
