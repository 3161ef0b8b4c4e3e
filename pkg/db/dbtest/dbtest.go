// Package dbtest opens an isolated in-memory SQLite store with the same tables,
// unique constraints and checks as the Postgres migrations.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pixelmint/pixelmint-backend/pkg/db"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		credits_balance INTEGER NOT NULL DEFAULT 0 CHECK (credits_balance >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE credit_ledger (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		delta INTEGER NOT NULL,
		reason TEXT NOT NULL,
		ref_provider TEXT NOT NULL DEFAULT '',
		ref_id TEXT NOT NULL,
		created_at DATETIME,
		CONSTRAINT uq_credit_ledger_ref UNIQUE (reason, ref_provider, ref_id)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		provider TEXT NOT NULL,
		provider_order_id TEXT NOT NULL,
		type TEXT NOT NULL,
		product_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created',
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		credits INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		provider TEXT NOT NULL,
		provider_customer_id TEXT,
		provider_subscription_id TEXT NOT NULL,
		product_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_period_start DATETIME,
		current_period_end DATETIME,
		canceled_at DATETIME,
		ended_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT uq_subscriptions_provider_ref UNIQUE (provider, provider_subscription_id)
	)`,
	`CREATE TABLE provider_events (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT '',
		received_at DATETIME,
		CONSTRAINT uq_provider_events UNIQUE (provider, event_id)
	)`,
	`CREATE TABLE model_pricing (
		model_key TEXT PRIMARY KEY,
		credits_per_image INTEGER NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT 1,
		updated_at DATETIME
	)`,
	`CREATE TABLE generation_jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		model_key TEXT NOT NULL,
		cost_credits INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		aspect_ratio TEXT NOT NULL DEFAULT '',
		image_size TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('running', 'succeeded', 'failed')),
		error TEXT,
		output_r2_key TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		completed_at DATETIME,
		CHECK (status <> 'succeeded' OR error IS NULL)
	)`,
}

// Open returns a client bound to a fresh private database. A single pooled
// connection keeps the in-memory database alive and serializes writers.
func Open(t *testing.T) *db.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
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

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	return db.NewFromConn(conn)
}

// SeedUser inserts a user with the given balance and a matching opening grant
// so the ledger sum equals the balance.
func SeedUser(t *testing.T, client *db.Client, balance int64) models.User {
	t.Helper()

	user := models.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com", CreditsBalance: balance}
	if err := client.DB().Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if balance > 0 {
		entry := models.CreditLedgerEntry{
			UserID:      user.ID,
			Delta:       balance,
			Reason:      enums.LedgerReasonOneTimeGrant,
			RefProvider: "seed",
			RefID:       user.ID.String(),
		}
		if err := client.DB().Create(&entry).Error; err != nil {
			t.Fatalf("seed opening grant: %v", err)
		}
	}
	return user
}

// SeedPricing upserts a model_pricing row.
func SeedPricing(t *testing.T, client *db.Client, modelKey string, credits int64, enabled bool) {
	t.Helper()

	if err := client.DB().Exec(
		`INSERT INTO model_pricing (model_key, credits_per_image, enabled) VALUES (?, ?, ?)
		 ON CONFLICT (model_key) DO UPDATE SET credits_per_image = excluded.credits_per_image, enabled = excluded.enabled`,
		modelKey, credits, enabled,
	).Error; err != nil {
		t.Fatalf("seed pricing: %v", err)
	}
}

// Balance reads users.credits_balance directly.
func Balance(t *testing.T, client *db.Client, userID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	if err := client.DB().Raw(`SELECT credits_balance FROM users WHERE id = ?`, userID).Scan(&balance).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return balance
}

// LedgerSum returns Σ delta for the user.
func LedgerSum(t *testing.T, client *db.Client, userID uuid.UUID) int64 {
	t.Helper()

	var sum int64
	if err := client.DB().Raw(`SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = ?`, userID).Scan(&sum).Error; err != nil {
		t.Fatalf("sum ledger: %v", err)
	}
	return sum
}
