package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
)

const (
	DefaultIdleTimeout  = 7200 * time.Second
	DefaultStoreTimeout = 2 * time.Second

	sessionIDBytes = 32
	nonceBytes     = 16
)

// SessionStore persists session records by ID.
// Get returns models.ErrSessionNotFound when no live record exists; Delete is idempotent.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.SessionRecord, error)
	Save(ctx context.Context, record *models.SessionRecord, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type SessionConfig struct {
	IdleTimeout  time.Duration
	Retention    time.Duration // store TTL; kept longer than IdleTimeout so expiry is observed, not silent
	StoreTimeout time.Duration
}

// SessionManager owns the session lifecycle:
// anonymous -> authenticated -> expired or invalidated -> anonymous.
type SessionManager struct {
	store  SessionStore
	config SessionConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewSessionManager(store SessionStore, config SessionConfig, logger *slog.Logger) *SessionManager {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Retention < config.IdleTimeout {
		config.Retention = 2 * config.IdleTimeout
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}

	return &SessionManager{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source (for testing)
func (m *SessionManager) SetClock(now func() time.Time) {
	m.now = now
}

// Start creates and persists a new anonymous session
func (m *SessionManager) Start(ctx context.Context, fingerprint string) (*models.SessionRecord, error) {
	record, err := m.newRecord(fingerprint)
	if err != nil {
		return nil, err
	}

	if err := m.Save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Load fetches the session for id, starting a new anonymous one when the ID is
// empty or unknown. The boolean reports whether a new session was started.
func (m *SessionManager) Load(ctx context.Context, id, fingerprint string) (*models.SessionRecord, bool, error) {
	if id != "" {
		record, err := m.get(ctx, id)
		switch {
		case err == nil:
			if m.NormalizeLegacyShape(record) {
				m.logger.Debug("normalized legacy session shape", slog.String("account_id", record.AccountID))
				if err := m.Save(ctx, record); err != nil {
					return nil, false, err
				}
			}
			return record, false, nil
		case errors.Is(err, models.ErrSessionNotFound):
		default:
			return nil, false, fmt.Errorf("%w: load session: %v", models.ErrTransientStore, err)
		}
	}

	record, err := m.Start(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Save persists record as-is
func (m *SessionManager) Save(ctx context.Context, record *models.SessionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()

	if err := m.store.Save(ctx, record, m.config.Retention); err != nil {
		return fmt.Errorf("%w: save session: %v", models.ErrTransientStore, err)
	}
	return nil
}

// Establish authenticates a session for account. The prior record is destroyed
// and a fresh ID issued, so an identifier planted before login is worthless
// afterwards. Throttle counters carry over except those of identifier.
func (m *SessionManager) Establish(ctx context.Context, prior *models.SessionRecord, account *models.Account, identifier, fingerprint string) (*models.SessionRecord, error) {
	if account == nil || account.ID == "" {
		return nil, errors.New("establish requires an account")
	}

	record, err := m.newRecord(fingerprint)
	if err != nil {
		return nil, err
	}
	record.AccountID = account.ID
	record.Account = account.Info()

	if prior != nil {
		for key, attempt := range prior.Attempts {
			if attempt == nil {
				continue
			}
			copied := *attempt
			record.Attempts[key] = &copied
		}
		delete(record.Attempts, IdentifierKey(identifier))

		if err := m.destroy(ctx, prior.ID); err != nil {
			return nil, err
		}
	}

	if err := m.Save(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Validate checks an authenticated session against the presenting client.
// Hijack and expiry both destroy the stored record before returning.
func (m *SessionManager) Validate(ctx context.Context, record *models.SessionRecord, fingerprint string) error {
	if !record.Authenticated() {
		return models.ErrUnauthorized
	}

	if !MatchFingerprint(record.Fingerprint, fingerprint) {
		if err := m.destroy(ctx, record.ID); err != nil {
			return err
		}
		return models.ErrHijackSuspected
	}

	now := m.now()
	if now.Sub(record.LastActivityAt) > m.config.IdleTimeout {
		if err := m.destroy(ctx, record.ID); err != nil {
			return err
		}
		return models.ErrSessionExpired
	}

	record.LastActivityAt = now
	if err := m.Save(ctx, record); err != nil {
		// The session stays valid for this request; the next one sees the older timestamp
		m.logger.Warn("failed to record session activity", slog.Any("error", err))
	}
	return nil
}

// NormalizeLegacyShape reconciles the canonical AccountID with the denormalized
// Account snapshot older code wrote. AccountID wins when both are present.
// It reports whether the record changed and is idempotent.
func (m *SessionManager) NormalizeLegacyShape(record *models.SessionRecord) bool {
	if record == nil {
		return false
	}

	changed := false
	switch {
	case record.AccountID == "" && record.Account != nil && record.Account.ID != "":
		record.AccountID = record.Account.ID
		changed = true
	case record.AccountID != "" && record.Account == nil:
		record.Account = &models.AccountInfo{ID: record.AccountID}
		changed = true
	case record.AccountID != "" && record.Account.ID != record.AccountID:
		// A stale snapshot describes a different account; keep only the canonical ID
		record.Account = &models.AccountInfo{ID: record.AccountID}
		changed = true
	case record.AccountID == "" && record.Account != nil:
		record.Account = nil
		changed = true
	}

	if record.CSRFNonce == "" {
		if nonce, err := randomToken(nonceBytes); err == nil {
			record.CSRFNonce = nonce
			changed = true
		}
	}

	return changed
}

// Terminate destroys the session and returns a fresh anonymous one
func (m *SessionManager) Terminate(ctx context.Context, record *models.SessionRecord, fingerprint string) (*models.SessionRecord, error) {
	if record != nil {
		if err := m.destroy(ctx, record.ID); err != nil {
			return nil, err
		}
	}
	return m.Start(ctx, fingerprint)
}

func (m *SessionManager) get(ctx context.Context, id string) (*models.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()

	return m.store.Get(ctx, id)
}

func (m *SessionManager) destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.StoreTimeout)
	defer cancel()

	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete session: %v", models.ErrTransientStore, err)
	}
	return nil
}

func (m *SessionManager) newRecord(fingerprint string) (*models.SessionRecord, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	nonce, err := randomToken(nonceBytes)
	if err != nil {
		return nil, err
	}

	now := m.now()
	return &models.SessionRecord{
		ID:             id,
		Fingerprint:    fingerprint,
		CSRFNonce:      nonce,
		Attempts:       make(map[string]*models.AttemptRecord),
		CreatedAt:      now,
		LastActivityAt: now,
	}, nil
}

// GenerateSessionID returns 32 random bytes, base64url encoded
func GenerateSessionID() (string, error) {
	return randomToken(sessionIDBytes)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
