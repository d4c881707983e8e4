// Package dbtest opens throwaway SQLite databases carrying the service schema
// for repository and reconciler tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'free',
		stripe_customer_id TEXT,
		subscription_id TEXT,
		subscription_status TEXT NOT NULL DEFAULT 'none',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE INDEX idx_users_subscription_id ON users(subscription_id)`,
	`CREATE TABLE licenses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		price NUMERIC NOT NULL,
		file_types TEXT NOT NULL DEFAULT '[]',
		usage_limit INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`INSERT INTO licenses (id, name, price, file_types, usage_limit) VALUES
		('basic', 'Basic', 20.00, '["mp3"]', 5000),
		('premium', 'Premium', 50.00, '["mp3","wav"]', 50000),
		('unlimited', 'Unlimited', 150.00, '["mp3","wav","stems"]', 0),
		('exclusive', 'Exclusive', 500.00, '["mp3","wav","stems"]', 0)`,
	`CREATE TABLE compositions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		artist_id TEXT NOT NULL REFERENCES users(id),
		price NUMERIC NOT NULL,
		genre TEXT NOT NULL,
		musical_key TEXT NOT NULL,
		bpm INTEGER NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		file_url TEXT NOT NULL,
		cover_image_url TEXT NOT NULL,
		listen_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE composition_licenses (
		composition_id TEXT NOT NULL REFERENCES compositions(id) ON DELETE CASCADE,
		license_id TEXT NOT NULL REFERENCES licenses(id),
		price NUMERIC NOT NULL,
		PRIMARY KEY (composition_id, license_id)
	)`,
	`CREATE TABLE composition_listens (
		id TEXT PRIMARY KEY,
		composition_id TEXT NOT NULL REFERENCES compositions(id) ON DELETE CASCADE,
		listener_key TEXT NOT NULL,
		listened_at DATETIME NOT NULL
	)`,
	`CREATE TABLE cart_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		composition_id TEXT NOT NULL,
		license_id TEXT NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		license_name TEXT NOT NULL,
		license_price NUMERIC NOT NULL,
		cover_image TEXT NOT NULL,
		file TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_cart_entries_user_composition_license ON cart_entries(user_id, composition_id, license_id)`,
	`CREATE TABLE purchases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		total_amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_purchases_session_id ON purchases(session_id)`,
	`CREATE TABLE purchase_items (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases(id),
		position INTEGER NOT NULL,
		composition_id TEXT NOT NULL,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		license_id TEXT NOT NULL,
		license_name TEXT NOT NULL,
		license_price NUMERIC NOT NULL,
		cover_image TEXT NOT NULL,
		file TEXT NOT NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a private in-memory database with the full schema applied and
// the license catalog seeded.
// The pool is pinned to one connection so concurrent callers serialize the
// way row locks would serialize them on Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}
