package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	pkgauth "github.com/JPdumas08/WebDev1.2-sub001/pkg/auth"
)

const DefaultLookupTimeout = 3 * time.Second

// AccountRepository is the narrow view of the account store used at login
type AccountRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
}

// Outcome of a credential check
type Outcome int

const (
	OutcomeInvalidCredentials Outcome = iota
	OutcomeSuccess
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "invalid_credentials"
}

// Verification is the result of a credential check; Account is set only on success
type Verification struct {
	Outcome Outcome
	Account *models.Account
}

var invalidCredentials = Verification{Outcome: OutcomeInvalidCredentials}

type VerifierConfig struct {
	LookupTimeout time.Duration
	HashCost      int // cost of the dummy hash; match the cost of stored hashes
}

// CredentialVerifier checks an identifier/secret pair against the account store.
// The caller cannot tell an unknown account from a wrong secret.
type CredentialVerifier struct {
	accounts AccountRepository
	config   VerifierConfig
	logger   *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewCredentialVerifier(accounts AccountRepository, config VerifierConfig, logger *slog.Logger) *CredentialVerifier {
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}
	if config.HashCost <= 0 {
		config.HashCost = pkgauth.DefaultBcryptCost
	}

	return &CredentialVerifier{
		accounts: accounts,
		config:   config,
		logger:   logger,
	}
}

// Verify never returns a success outcome together with an error. A non-nil
// error signals a store fault; the outcome is then always invalid credentials.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, secret string) (Verification, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return invalidCredentials, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.config.LookupTimeout)
	defer cancel()

	account, err := v.accounts.FindByIdentifier(lookupCtx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			v.burnComparison(secret)
			return invalidCredentials, nil
		}
		return invalidCredentials, fmt.Errorf("%w: account lookup: %v", models.ErrTransientStore, err)
	}

	if account.PasswordHash == "" {
		v.burnComparison(secret)
		return invalidCredentials, nil
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, secret); err != nil {
		if !pkgauth.IsMismatch(err) {
			v.logger.Warn("stored password hash is unusable",
				slog.String("account_id", account.ID),
				slog.String("reason", err.Error()),
			)
		}
		return invalidCredentials, nil
	}

	return Verification{Outcome: OutcomeSuccess, Account: account}, nil
}

// burnComparison spends one bcrypt comparison so unknown accounts cost as much as wrong secrets
func (v *CredentialVerifier) burnComparison(secret string) {
	v.dummyOnce.Do(func() {
		hash, err := pkgauth.NewDummyHash(v.config.HashCost)
		if err != nil {
			v.logger.Error("failed to create dummy hash", slog.Any("error", err))
			return
		}
		v.dummyHash = hash
	})

	if v.dummyHash != "" {
		_ = pkgauth.ComparePassword(v.dummyHash, secret)
	}
}
