package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/database"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, email, username, password_hash, created_at, updated_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner interface for scanning account rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var username, passwordHash *string

	err := scanner.Scan(
		&account.ID, &account.Email, &username, &passwordHash,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if username != nil {
		account.Username = *username
	}
	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}

	return &account, nil
}

// FindByIdentifier looks an account up by email or username, case-insensitively,
// in a single query. Returns models.ErrNotFound when nothing matches.
func (r *AccountRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE lower(email) = lower($1) OR lower(username) = lower($1)
		ORDER BY lower(email) = lower($1) DESC
		LIMIT 2
	`

	rows, err := r.pool.Query(ctx, query, strings.TrimSpace(identifier))
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	var found []*models.Account
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		found = append(found, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", database.MapPostgresError(err))
	}

	switch len(found) {
	case 0:
		return nil, models.ErrNotFound
	case 1:
		return found[0], nil
	default:
		// One account's email is another's username; refuse to guess
		return nil, fmt.Errorf("identifier matches %d accounts: %w", len(found), models.ErrConflict)
	}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (id, email, username, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + accountColumns

	var username *string
	if account.Username != "" {
		username = &account.Username
	}

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Email, username, account.PasswordHash,
		account.CreatedAt, account.UpdatedAt,
	))
}
