package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"
	logging "github.com/4uJustDev/medical-calculator-haq/internal/logging"
	"github.com/4uJustDev/medical-calculator-haq/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const patientNameIndex = "idx_submissions_patient_name"

// upgrade is one step of the store schema. Steps run in order, once each, and
// the applied version is recorded in schema_versions.
type upgrade struct {
	version int
	name    string
	apply   func(tx *gorm.DB) error
}

var upgrades = []upgrade{
	{
		version: 1,
		name:    "create submissions",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.SubmissionRecord{})
		},
	},
	{
		version: 2,
		name:    "index submissions by patient name",
		apply: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.SubmissionRecord{}, patientNameIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX IF NOT EXISTS " + patientNameIndex + " ON submissions (patient_name)").Error
		},
	},
}

// Open connects to the configured store and brings its schema up to date.
// Every failure is reported as models.ErrStorageUnavailable so the caller can
// fall back to running without persistence.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logging.NewGormZapLogger(log, logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s store: %w", models.ErrStorageUnavailable, cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		if err := tuneSQLite(db); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
		}
	}

	log.Info("Database connection established successfully.", zap.String("driver", cfg.Driver))
	if err := runMigrations(db, log); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	return db, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite", "":
		if !isMemoryPath(cfg.Path) {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		return sqlite.Open(cfg.Path), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port)
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// tuneSQLite applies pragmas and keeps a single connection: this application
// is the only writer, and an in-memory database lives on one connection.
func tuneSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range pragmas {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return nil
}

func runMigrations(db *gorm.DB, log *zap.Logger) error {
	if err := db.AutoMigrate(&models.SchemaVersion{}); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	var current int
	if err := db.Model(&models.SchemaVersion{}).Select("COALESCE(MAX(version), 0)").Scan(&current).Error; err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, u := range upgrades {
		if u.version <= current {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := u.apply(tx); err != nil {
				return err
			}
			return tx.Create(&models.SchemaVersion{Version: u.version, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("schema upgrade %d (%s): %w", u.version, u.name, err)
		}
		log.Info("Applied schema upgrade", zap.Int("version", u.version), zap.String("name", u.name))
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
