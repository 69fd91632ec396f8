package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitSourceDB opens the operational store (MySQL).
func InitSourceDB(cfg *Config, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(withParseTime(cfg.SourceDSN)), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("opening operational store: %w", err)
	}
	if err := tunePool(db, cfg.MaxOpenConns); err != nil {
		return nil, fmt.Errorf("operational store: %w", err)
	}
	return db, nil
}

// InitTargetDB opens the analytical store (PostgreSQL).
func InitTargetDB(cfg *Config, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.TargetDSN), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("opening analytical store: %w", err)
	}
	if err := tunePool(db, cfg.MaxOpenConns); err != nil {
		return nil, fmt.Errorf("analytical store: %w", err)
	}
	return db, nil
}

func gormConfig(log *logrus.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

func tunePool(db *gorm.DB, maxOpen int) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return sqlDB.Ping()
}

// withParseTime makes the MySQL driver return DATETIME columns as time.Time.
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
