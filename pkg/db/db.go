package db

import (
	"context"
	"fmt"
	"log"
	"sync"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dallisoft/ingest-backend/config"
)

var db *gorm.DB
var once sync.Once

// GetSharedConnection returns the process-wide gorm connection, opening it on
// first use with the pool settings from the configuration.
func GetSharedConnection() *gorm.DB {
	once.Do(func() {
		cfg := config.Config.Database
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=%s",
			cfg.Host,
			cfg.Username,
			cfg.Password,
			cfg.Name,
			cfg.Port,
			cfg.TimeZone,
		)

		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			QueryFields: true, // QueryFields mode will select by all fields' name for current model
		})
		if err != nil {
			log.Fatalf("opening database connection: %v", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("accessing database pool: %v", err)
		}
		sqlDB.SetMaxIdleConns(cfg.Pool.IdleConnections)
		sqlDB.SetMaxOpenConns(cfg.Pool.MaxConnections)
		sqlDB.SetConnMaxLifetime(cfg.Pool.ConnLifeTime)
	})
	return db
}

// Ping verifies the database connection is alive.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying sql connection pool.
func Close(db *gorm.DB) {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}
}
