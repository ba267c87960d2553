package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	FindByIdentifierFunc func(ctx context.Context, identifier string) (*models.Account, error)
}

func (m *MockAccountRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	if m.FindByIdentifierFunc != nil {
		return m.FindByIdentifierFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

// MockCredentialChecker implements CredentialChecker for testing
type MockCredentialChecker struct {
	VerifyFunc func(ctx context.Context, identifier, secret string) (Verification, error)

	mu    sync.Mutex
	calls int
}

func (m *MockCredentialChecker) Verify(ctx context.Context, identifier, secret string) (Verification, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, identifier, secret)
	}
	return Verification{Outcome: OutcomeInvalidCredentials}, nil
}

// Calls returns how many times Verify was invoked
func (m *MockCredentialChecker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockAntiForgery implements AntiForgery for testing
type MockAntiForgery struct {
	VerifyFunc        func(token string, session *models.SessionRecord) bool
	GenerateTokenFunc func(session *models.SessionRecord) (string, error)
}

func (m *MockAntiForgery) Verify(token string, session *models.SessionRecord) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(token, session)
	}
	return token == "valid-token"
}

func (m *MockAntiForgery) GenerateToken(session *models.SessionRecord) (string, error) {
	if m.GenerateTokenFunc != nil {
		return m.GenerateTokenFunc(session)
	}
	return "valid-token", nil
}

// NewTestAccount creates a test account with a precomputed password hash
func NewTestAccount(id, email, username, passwordHash string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:           id,
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
