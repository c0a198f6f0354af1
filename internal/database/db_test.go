package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, name string, profile Profile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_AllProfiles(t *testing.T) {
	tables := map[string][]string{
		"intel": {"exploration_records", "market_intelligence", "trading_patterns"},
		"audit": {"security_events"},
		"cache": {"ghost_trade_cache"},
	}
	profiles := map[string]Profile{
		"intel": ProfileStandard,
		"audit": ProfileAudit,
		"cache": ProfileCache,
	}

	for name, expected := range tables {
		t.Run(name, func(t *testing.T) {
			db := openTestDB(t, name, profiles[name])
			require.NoError(t, db.Migrate())
			// Re-running must be harmless.
			require.NoError(t, db.Migrate())

			for _, table := range expected {
				var found string
				err := db.Conn().QueryRow(
					`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
				).Scan(&found)
				require.NoError(t, err, "table %s missing", table)
			}
		})
	}
}

func TestMigrate_UnknownDatabase(t *testing.T) {
	db := openTestDB(t, "mystery", ProfileStandard)
	assert.Error(t, db.Migrate())
}

func TestWithTransaction_Commit(t *testing.T) {
	db := openTestDB(t, "intel", ProfileStandard)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO exploration_records (player_id, sector_id, first_visit, last_visit, visit_count)
			VALUES ('p1', 's1', '2026-08-01T00:00:00Z', '2026-08-01T00:00:00Z', 1)`)
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM exploration_records`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db := openTestDB(t, "intel", ProfileStandard)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO exploration_records (player_id, sector_id, first_visit, last_visit, visit_count)
			VALUES ('p1', 's1', '2026-08-01T00:00:00Z', '2026-08-01T00:00:00Z', 1)`); err != nil {
			return err
		}
		return fmt.Errorf("deliberate failure")
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM exploration_records`).Scan(&count))
	assert.Zero(t, count)
}

func TestWithTransaction_RecoversPanic(t *testing.T) {
	db := openTestDB(t, "intel", ProfileStandard)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(*sql.Tx) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestHealthCheckAndCheckpoint(t *testing.T) {
	db := openTestDB(t, "audit", ProfileAudit)
	require.NoError(t, db.Migrate())

	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, db.WALCheckpoint())
}
