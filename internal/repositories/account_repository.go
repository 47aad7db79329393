package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kubeusers/backend/internal/database"
	"github.com/kubeusers/backend/internal/models"
	"go.uber.org/zap"
)

const accountColumns = `id, username, email, password_hash, role, is_active, created_at, last_login`

// accountRepository implements the account store on top of the users table
type accountRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
	// returning is set for drivers without LastInsertId support
	returning bool
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB, logger *zap.Logger) *accountRepository {
	return &accountRepository{
		db:        db,
		logger:    logger,
		returning: db.DriverName() == "pgx",
	}
}

// Create inserts a new account and sets its ID.
// Uniqueness of username and email is left to the table's unique constraints, so two concurrent
// creates with the same username cannot both succeed.
func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (username, email, password_hash, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	args := []any{account.Username, account.Email, account.PasswordHash, account.Role, account.IsActive, account.CreatedAt}

	var id int64
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if r.returning {
			return tx.QueryRowxContext(ctx, tx.Rebind(query+" RETURNING id"), args...).Scan(&id)
		}

		result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		r.logger.Error("failed to create account", zap.Error(err), zap.String("username", account.Username))
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.ID = id
	return nil
}

// FindByUsername retrieves an account by username
func (r *accountRepository) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE username = ?`

	account := &models.Account{}
	err := r.db.GetContext(ctx, account, r.db.Rebind(query), username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		r.logger.Error("failed to get account by username", zap.Error(err), zap.String("username", username))
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}

	return account, nil
}

// ListAll returns every account in storage order
func (r *accountRepository) ListAll(ctx context.Context) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users ORDER BY id`

	accounts := []models.Account{}
	if err := r.db.SelectContext(ctx, &accounts, query); err != nil {
		r.logger.Error("failed to list accounts", zap.Error(err))
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

// RecordLogin sets last_login for the account with the given ID
func (r *accountRepository) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET last_login = ? WHERE id = ?`), at.UTC(), id)
		if err != nil {
			return err
		}
		return ensureAffected(ctx, tx, result, `SELECT COUNT(*) FROM users WHERE id = ?`, id)
	})
	if errors.Is(err, models.ErrAccountNotFound) {
		return err
	}
	if err != nil {
		r.logger.Error("failed to record login", zap.Error(err), zap.Int64("account_id", id))
		return fmt.Errorf("failed to record login: %w", err)
	}

	return nil
}

// SetActive activates or deactivates the account with the given username
func (r *accountRepository) SetActive(ctx context.Context, username string, active bool) error {
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET is_active = ? WHERE username = ?`), active, username)
		if err != nil {
			return err
		}
		return ensureAffected(ctx, tx, result, `SELECT COUNT(*) FROM users WHERE username = ?`, username)
	})
	if errors.Is(err, models.ErrAccountNotFound) {
		return err
	}
	if err != nil {
		r.logger.Error("failed to set account status", zap.Error(err), zap.String("username", username))
		return fmt.Errorf("failed to set account status: %w", err)
	}

	return nil
}

// ensureAffected returns models.ErrAccountNotFound when an update matched no row.
// MySQL reports zero affected rows when the new value equals the old one, so a zero
// count is confirmed with existsQuery before it is treated as missing.
func ensureAffected(ctx context.Context, tx *sqlx.Tx, result sql.Result, existsQuery string, arg any) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var count int
	if err := tx.GetContext(ctx, &count, tx.Rebind(existsQuery), arg); err != nil {
		return err
	}
	if count == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}
