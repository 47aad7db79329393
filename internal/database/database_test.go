package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/kubeusers/backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver:       config.DriverSQLite,
		DSN:          "file:" + filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDriverName(t *testing.T) {
	tests := []struct {
		driver        string
		expected      string
		expectedError bool
	}{
		{driver: config.DriverMySQL, expected: "mysql"},
		{driver: config.DriverPostgres, expected: "pgx"},
		{driver: config.DriverSQLite, expected: "sqlite"},
		{driver: "oracle", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			name, err := DriverName(tt.driver)
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestConnectionString(t *testing.T) {
	tests := []struct {
		name          string
		cfg           config.DatabaseConfig
		contains      []string
		expected      string
		expectedError bool
	}{
		{
			name:     "mysql without parseTime",
			cfg:      config.DatabaseConfig{Driver: config.DriverMySQL, DSN: "u:p@tcp(db:3306)/users"},
			contains: []string{"parseTime=true", "u:p@tcp(db:3306)/users"},
		},
		{
			name:     "mysql parseTime disabled",
			cfg:      config.DatabaseConfig{Driver: config.DriverMySQL, DSN: "u:p@tcp(db:3306)/users?parseTime=false&timeout=5s"},
			contains: []string{"parseTime=true", "timeout=5s"},
		},
		{
			name:          "mysql malformed",
			cfg:           config.DatabaseConfig{Driver: config.DriverMySQL, DSN: "u:p@tcp(db:3306)users"},
			expectedError: true,
		},
		{
			name:     "postgres untouched",
			cfg:      config.DatabaseConfig{Driver: config.DriverPostgres, DSN: "postgres://u:p@db/users"},
			expected: "postgres://u:p@db/users",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := ConnectionString(tt.cfg)
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.expected != "" {
				assert.Equal(t, tt.expected, dsn)
			}
			for _, part := range tt.contains {
				assert.Contains(t, dsn, part)
			}

			if tt.cfg.Driver == config.DriverMySQL {
				mc, err := mysql.ParseDSN(dsn)
				require.NoError(t, err)
				assert.True(t, mc.ParseTime)
				assert.Equal(t, time.UTC, mc.Loc)
			}
		})
	}
}

func TestMigrations_MySQLIdentityColumnsAreCaseSensitive(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/mysql/000001_create_users_table.up.sql")
	require.NoError(t, err)

	schema := string(up)
	assert.Contains(t, schema, "username VARCHAR(80) COLLATE utf8mb4_bin NOT NULL")
	assert.Contains(t, schema, "email VARCHAR(120) COLLATE utf8mb4_bin NOT NULL")
}

func TestMigrate_SQLite(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Migrate(db.DB, config.DriverSQLite))
	// second run is a no-op
	require.NoError(t, Migrate(db.DB, config.DriverSQLite))

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 0, count)

	_, err := db.Exec(`INSERT INTO users (username, email, password_hash, role, is_active, created_at) VALUES ('a', 'a@example.com', 'h', 'user', 1, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (username, email, password_hash, role, is_active, created_at) VALUES ('a', 'b@example.com', 'h', 'user', 1, CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "username must be unique")
	_, err = db.Exec(`INSERT INTO users (username, email, password_hash, role, is_active, created_at) VALUES ('c', 'c@example.com', 'h', 'root', 1, CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "role must be admin or user")
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db.DB, config.DriverSQLite))

	insert := func(tx *sqlx.Tx, username string) error {
		_, err := tx.Exec(`INSERT INTO users (username, email, password_hash, role, is_active, created_at) VALUES (?, ?, 'h', 'user', 1, CURRENT_TIMESTAMP)`, username, username+"@example.com")
		return err
	}
	count := func() int {
		var n int
		require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM users`))
		return n
	}

	t.Run("commit", func(t *testing.T) {
		err := WithTx(context.Background(), db, nil, func(tx *sqlx.Tx) error {
			return insert(tx, "committed")
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rollback on error", func(t *testing.T) {
		sentinel := errors.New("stop")
		err := WithTx(context.Background(), db, nil, func(tx *sqlx.Tx) error {
			require.NoError(t, insert(tx, "rolledback"))
			return sentinel
		})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, count())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = WithTx(context.Background(), db, nil, func(tx *sqlx.Tx) error {
				require.NoError(t, insert(tx, "panicked"))
				panic("boom")
			})
		})
		assert.Equal(t, 1, count())
	})
}
