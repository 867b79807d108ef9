package database

import (
	"path/filepath"
	"testing"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"
	"github.com/4uJustDev/medical-calculator-haq/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenAppliesSchemaUpgrades(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, db.Migrator().HasTable(&models.SubmissionRecord{}))
	assert.True(t, db.Migrator().HasIndex(&models.SubmissionRecord{}, patientNameIndex))

	var versions []models.SchemaVersion
	require.NoError(t, db.Order("version").Find(&versions).Error)
	require.Len(t, versions, len(upgrades))
	for i, v := range versions {
		assert.Equal(t, upgrades[i].version, v.Version)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, runMigrations(db, zap.NewNop()))

	var n int64
	require.NoError(t, db.Model(&models.SchemaVersion{}).Count(&n).Error)
	assert.Equal(t, int64(len(upgrades)), n)
}

func TestOpenKeepsDataAcrossRestarts(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "nested", "haq.db")}

	db, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.SubmissionRecord{ID: 7, Date: "d", Answers: models.AnswerSet{}}).Error)
	require.NoError(t, Close(db))

	db, err = Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer Close(db)

	var n int64
	require.NoError(t, db.Model(&models.SubmissionRecord{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}
