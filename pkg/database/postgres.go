package database

import (
	"fmt"
	"log"
	"time"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresDB(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	if err := Migrate(db); err != nil {
		log.Fatalf("failed to auto-migrate: %v", err)
	}
	EnsureConstraints(db)

	return db
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Listing{}, &models.Booking{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

var constraints = []struct {
	name string
	sql  string
}{
	{
		name: "idx_bookings_payment_ref",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_payment_ref
			ON bookings (payment_ref)
			WHERE payment_ref IS NOT NULL`,
	},
	{
		name: "bookings_dates_ordered",
		sql: `DO $$ BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_dates_ordered') THEN
				ALTER TABLE bookings ADD CONSTRAINT bookings_dates_ordered CHECK (end_date >= start_date);
			END IF;
		END $$`,
	},
	{
		name: "btree_gist",
		sql:  `CREATE EXTENSION IF NOT EXISTS btree_gist`,
	},
	{
		// Inclusive ranges: bookings that share a boundary day collide.
		name: "bookings_no_overlap",
		sql: `DO $$ BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'bookings_no_overlap') THEN
				ALTER TABLE bookings ADD CONSTRAINT bookings_no_overlap
				EXCLUDE USING gist (listing_id WITH =, daterange(start_date, end_date, '[]') WITH &&)
				WHERE (status IN ('PENDING', 'CONFIRMED'));
			END IF;
		END $$`,
	},
}

// EnsureConstraints installs the indexes and constraints AutoMigrate cannot
// express. Failures are logged: the overlap constraint needs the btree_gist
// extension, and the row lock taken on create still serializes bookings
// without it.
func EnsureConstraints(db *gorm.DB) {
	for _, c := range constraints {
		if err := db.Exec(c.sql).Error; err != nil {
			log.Printf("[Database] could not ensure %s: %v", c.name, err)
		}
	}
}
