// Package dbtest opens throwaway SQLite databases carrying the marketplace schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/gogift-backend/pkg/db"
)

// Schema mirrors pkg/migrate/migrations using SQLite types. Decimals are
// stored as TEXT so shopspring/decimal round-trips exactly.
var Schema = []string{
	`CREATE TABLE listings (
		id TEXT PRIMARY KEY,
		enterprise_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		unit_price TEXT NOT NULL,
		seller_amount TEXT NOT NULL,
		available_qty INTEGER NOT NULL CHECK (available_qty >= 0),
		code_mode TEXT NOT NULL,
		declared_codes TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		valid_until DATETIME,
		low_stock_notified INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		buyer_email TEXT NOT NULL,
		buyer_name TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		status_detail TEXT,
		subtotal_amount TEXT NOT NULL,
		fee_amount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		net_amount TEXT,
		currency TEXT NOT NULL,
		payment_reference TEXT,
		payment_id TEXT,
		redirect_url TEXT,
		settled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_lines (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		listing_id TEXT NOT NULL,
		enterprise_id TEXT NOT NULL,
		title TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		seller_amount TEXT NOT NULL,
		line_total TEXT NOT NULL,
		short_qty INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'VALID',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE gift_allocations (
		id TEXT PRIMARY KEY,
		order_line_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		recipient_name TEXT NOT NULL,
		recipient_email TEXT NOT NULL,
		message TEXT,
		quantity INTEGER NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE gift_codes (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		order_line_id TEXT NOT NULL,
		gift_allocation_id TEXT,
		value TEXT NOT NULL UNIQUE,
		position INTEGER NOT NULL,
		used INTEGER NOT NULL DEFAULT 0,
		used_at DATETIME,
		redeemed_by TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a client bound to a fresh in-memory database. A single pooled
// connection serializes writers the way row locks do in Postgres.
func Open(t testing.TB) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db.FromGorm(conn)
}
