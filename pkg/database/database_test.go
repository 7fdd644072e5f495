package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

func TestOpenAndHealthCheck(t *testing.T) {
	db, err := Open("file::memory:")
	require.NoError(t, err)
	defer Close(db)

	assert.NoError(t, HealthCheck(db))
}

func TestHealthCheckAfterClose(t *testing.T) {
	db, err := Open("file::memory:")
	require.NoError(t, err)
	require.NoError(t, Close(db))

	assert.Error(t, HealthCheck(db))
}

func TestMigrate(t *testing.T) {
	db, err := Open("file::memory:")
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, Migrate(db, &note{}))
	assert.True(t, db.Migrator().HasTable(&note{}))
}
