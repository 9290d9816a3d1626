package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-aggregator/internal/config"
	"github.com/portfolio-aggregator/internal/types"
)

func testClickHouse(t *testing.T) *ClickHouseDB {
	requireIntegration(t)
	cfg := &config.ClickHouseConfig{
		Host:     envOr("CLICKHOUSE_HOST", "localhost"),
		Port:     envOr("CLICKHOUSE_PORT", "9000"),
		Database: envOr("CLICKHOUSE_DB", "portfolio_test"),
		User:     envOr("CLICKHOUSE_USER", "default"),
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	}
	db, err := NewClickHouseDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSplitSQLStatements(t *testing.T) {
	content := `
-- header comment
CREATE TABLE a (
    x Int32
) ENGINE = Memory;

-- second
CREATE TABLE b (y String) ENGINE = Memory;
SELECT 1`
	stmts := splitSQLStatements(content)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.NotContains(t, stmts[0], ";")
	assert.Equal(t, "CREATE TABLE b (y String) ENGINE = Memory", stmts[1])
	assert.Equal(t, "SELECT 1", stmts[2])
}

func TestMigrationFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o700))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)

	_, err = migrationFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}

func TestLedgerRepository_RoundTrip(t *testing.T) {
	db := testClickHouse(t)
	ctx := testContext(t)

	_, err := RunClickHouseMigrations(ctx, db, filepath.Join("..", "..", "migrations", "clickhouse"))
	require.NoError(t, err)

	repo := NewLedgerRepository(db)
	date := time.Date(2001, 1, 2, 0, 0, 0, 0, time.UTC)
	runID := "test-" + time.Now().Format("150405.000000")

	p := types.NewPosition(types.WalletRef{ID: "it-wallet", Type: types.WalletManual, Strategy: "test"},
		types.ChainEthereum, "wallet", types.PositionHodl, "ETH", 2)
	p.Date = date
	p.Price = types.Float(1500)
	p.Value = types.Float(3000)
	p.BetaDaily = 1.25

	require.NoError(t, repo.AppendBatch(ctx, runID, []*types.Position{p}))

	rows, err := repo.GetByDate(ctx, date)
	require.NoError(t, err)

	var found *types.Position
	for _, r := range rows {
		if r.PositionID == p.PositionID {
			found = r
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 3000.0, *found.Value)
	assert.Nil(t, found.Equity)
	assert.Equal(t, types.Ratio(1.25), found.BetaDaily)
	assert.True(t, found.BetaWeekly.IsNaN())

	history, err := repo.History(ctx, p.PositionID, date.AddDate(0, 0, -1), date)
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	applied, err := ClickHouseMigrationStatus(ctx, db)
	require.NoError(t, err)
	assert.Contains(t, applied, "001_positions_ledger.sql")
}
