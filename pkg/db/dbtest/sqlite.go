// Package dbtest opens isolated in-memory sqlite databases carrying the saga
// schema for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const schema = `
CREATE TABLE IF NOT EXISTS saga_transactions (
  id TEXT PRIMARY KEY,
  transaction_id TEXT NOT NULL UNIQUE,
  business_id TEXT,
  flow TEXT NOT NULL,
  status TEXT NOT NULL,
  expected_participants TEXT NOT NULL DEFAULT '[]',
  completed_participants TEXT NOT NULL DEFAULT '[]',
  failed_participants TEXT NOT NULL DEFAULT '[]',
  compensated_participants TEXT NOT NULL DEFAULT '[]',
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS event_records (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  business_type TEXT,
  aggregate_id TEXT NOT NULL,
  event_data TEXT NOT NULL,
  timestamp DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS outbox_messages (
  id TEXT PRIMARY KEY,
  topic TEXT NOT NULL DEFAULT '',
  business_type TEXT,
  payload TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at DATETIME,
  sent_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`

// Open returns a connection to a fresh database named after the test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive between statements.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
