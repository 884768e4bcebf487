package migrations

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	stmts []string
}

func (r *recordingExecer) Exec(_ context.Context, query string, _ ...any) error {
	r.stmts = append(r.stmts, query)
	return nil
}

func TestSplitStatements(t *testing.T) {
	stmts := SplitStatements(`
-- comment; with semicolon
CREATE TABLE a (x Int8);

CREATE TABLE b (y Int8)
ENGINE = Memory;
`)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x Int8)", stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b"))
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s fine';"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b';"))
}

func TestRunClickhouseMigrations_AppliesEmbeddedFiles(t *testing.T) {
	rec := &recordingExecer{}
	require.NoError(t, RunClickhouseMigrations(context.Background(), rec))
	require.NotEmpty(t, rec.stmts)
	assert.Contains(t, rec.stmts[0], "CREATE TABLE IF NOT EXISTS candles")
}

func TestPostgresFiles(t *testing.T) {
	files, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_core.sql", "002_candles.sql"}, files)
}
