package repositories

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kubeusers/backend/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	mysqlDuplicateEntry      = 1062
	mysqlKeyMarker           = "for key "
	sqliteUniqueMarker       = "UNIQUE constraint failed: "
	postgresUniqueViolation  = "23505"
	usernameConstraint       = "uq_users_username"
	emailConstraint          = "uq_users_email"
	sqliteUsernameConstraint = "users.username"
	sqliteEmailConstraint    = "users.email"
)

// uniqueViolation translates a unique-constraint failure on the users table into
// models.ErrDuplicateUsername or models.ErrDuplicateEmail. It returns nil for any other error.
func uniqueViolation(err error) error {
	var key string

	var myErr *mysql.MySQLError
	var pgErr *pgconn.PgError
	var liteErr *sqlite.Error
	switch {
	case errors.As(err, &myErr):
		if myErr.Number != mysqlDuplicateEntry {
			return nil
		}
		// Duplicate entry '<value>' for key '<key>'; the value may contain anything
		i := strings.LastIndex(myErr.Message, mysqlKeyMarker)
		if i < 0 {
			return nil
		}
		key = myErr.Message[i+len(mysqlKeyMarker):]
	case errors.As(err, &pgErr):
		if pgErr.Code != postgresUniqueViolation {
			return nil
		}
		key = pgErr.ConstraintName
	case errors.As(err, &liteErr):
		code := liteErr.Code()
		msg := liteErr.Error()
		i := strings.LastIndex(msg, sqliteUniqueMarker)
		isUnique := code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code&0xff == sqlite3.SQLITE_CONSTRAINT
		if !isUnique || i < 0 {
			return nil
		}
		// UNIQUE constraint failed: users.email (2067)
		key, _, _ = strings.Cut(msg[i+len(sqliteUniqueMarker):], " ")
	default:
		return nil
	}

	key = strings.Trim(strings.TrimSpace(key), "'`")
	switch {
	case strings.HasSuffix(key, usernameConstraint), strings.HasSuffix(key, sqliteUsernameConstraint):
		return models.ErrDuplicateUsername
	case strings.HasSuffix(key, emailConstraint), strings.HasSuffix(key, sqliteEmailConstraint):
		return models.ErrDuplicateEmail
	default:
		return nil
	}
}
