// Package dbtest opens isolated in-memory SQLite databases carrying the same
// tables, defaults and unique indexes as the Postgres migrations.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE sms_raw (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT,
		received_at DATETIME NOT NULL,
		dedup_key TEXT NOT NULL UNIQUE,
		ingest_status TEXT NOT NULL DEFAULT 'received',
		review_lane TEXT,
		metadata BLOB,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE sms_parsed (
		id TEXT PRIMARY KEY,
		sms_id TEXT NOT NULL UNIQUE,
		amount INTEGER,
		currency TEXT NOT NULL DEFAULT 'RWF',
		reference TEXT,
		payer_mask TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		parser_version TEXT NOT NULL,
		matched_entity TEXT,
		decision TEXT,
		candidate_ids TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX sms_parsed_matched_entity_key ON sms_parsed (matched_entity) WHERE matched_entity IS NOT NULL`,
	`CREATE TABLE sms_manual_resolutions (
		id TEXT PRIMARY KEY,
		sms_id TEXT NOT NULL UNIQUE,
		resolution TEXT NOT NULL,
		note TEXT,
		resolved_by TEXT NOT NULL,
		resolved_at DATETIME NOT NULL
	)`,
	`CREATE TABLE sms_parser_prompts (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		body TEXT NOT NULL,
		version INTEGER NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT 0,
		created_by TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL DEFAULT 'RWF',
		kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		expected_reference TEXT,
		payer_phone TEXT,
		sms_parsed_id TEXT UNIQUE,
		failure_reason TEXT,
		metadata BLOB,
		confirmed_at DATETIME,
		failed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE ticket_orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		amount INTEGER NOT NULL,
		sms_ref TEXT,
		paid_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE shop_orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		amount INTEGER NOT NULL,
		confirmed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE memberships (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		amount INTEGER NOT NULL,
		started_at DATETIME,
		expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE donations (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		amount INTEGER NOT NULL,
		confirmed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		before BLOB,
		after BLOB,
		actor_id TEXT,
		at DATETIME NOT NULL
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
		event_id TEXT NOT NULL,
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

// Open returns a fresh database private to the calling test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=0", name, seq.Add(1))

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Serialize caps conn at one open connection. Shared-cache SQLite answers
// concurrent writers with a table lock error instead of waiting, so tests
// that race goroutines queue them on the pool.
func Serialize(t *testing.T, conn *gorm.DB) {
	t.Helper()
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}
