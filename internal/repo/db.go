// Package repo implements the data persistence layer for the crawler,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and PostgreSQL plus schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/AhaCompany/crawl-reddit-sub000/internal/config"
	"github.com/AhaCompany/crawl-reddit-sub000/internal/domain"
)

// Open connects to the configured storage backend and applies migrations.
func Open(cfg config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err = OpenPostgres(cfg.Postgres.DSN(), cfg.Postgres.MaxConns)
	default:
		db, err = OpenSQLite(cfg.SQLitePath)
	}
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("attach tracing plugin: %w", err)
		}
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	return db, nil
}

// OpenPostgres connects to PostgreSQL and configures the connection pool.
func OpenPostgres(dsn string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		if maxConns < 1 {
			maxConns = 20
		}
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
		sqlDB.SetConnMaxIdleTime(30 * time.Second)
	}

	return db, nil
}

// AutoMigrate creates or updates the crawler tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.RedditCredential{},
		&domain.ProxyEndpoint{},
		&domain.DataEntity{},
		&domain.PostTracking{},
	)
}
