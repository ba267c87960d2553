//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/database"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/JPdumas08/WebDev1.2-sub001/internal/repositories"
	"github.com/JPdumas08/WebDev1.2-sub001/migrations"
)

// setupTestDatabase starts PostgreSQL in a container and applies the embedded migrations
func setupTestDatabase(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("shop"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	require.NoError(t, runMigrations(ctx, pool))

	return database.NewFromPool(pool, slog.Default())
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	// Goose needs a database/sql handle
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func TestAccountRepository_FindByIdentifier(t *testing.T) {
	db := setupTestDatabase(t)
	repo := repositories.NewAccountRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.Account{
		Email:        "Alice@Example.com",
		Username:     "alice",
		PasswordHash: "$2a$04$placeholderplaceholderplacehol",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	tests := []struct {
		name       string
		identifier string
	}{
		{"email exact", "Alice@Example.com"},
		{"email lowercase", "alice@example.com"},
		{"email uppercase", "ALICE@EXAMPLE.COM"},
		{"username", "alice"},
		{"username mixed case", "AlIcE"},
		{"surrounding whitespace", "  alice  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, err := repo.FindByIdentifier(ctx, tt.identifier)
			require.NoError(t, err)
			assert.Equal(t, created.ID, account.ID)
			assert.Equal(t, created.PasswordHash, account.PasswordHash)
		})
	}

	_, err = repo.FindByIdentifier(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountRepository_UniqueCaseInsensitiveEmail(t *testing.T) {
	db := setupTestDatabase(t)
	repo := repositories.NewAccountRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &models.Account{Email: "bob@example.com", PasswordHash: "x"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &models.Account{Email: "BOB@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAccountRepository_AmbiguousIdentifier(t *testing.T) {
	db := setupTestDatabase(t)
	repo := repositories.NewAccountRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &models.Account{Email: "carol@example.com", Username: "carol", PasswordHash: "x"})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &models.Account{Email: "dave@example.com", Username: "carol@example.com", PasswordHash: "y"})
	require.NoError(t, err)

	_, err = repo.FindByIdentifier(ctx, "carol@example.com")
	assert.ErrorIs(t, err, models.ErrConflict)
}
