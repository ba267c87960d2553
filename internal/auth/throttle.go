package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	pkglogger "github.com/JPdumas08/WebDev1.2-sub001/pkg/logger"
)

const (
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = 900 * time.Second
)

// AttemptStore holds failure counters keyed by hashed identifier.
// GetAttempt returns (nil, nil) when no record exists.
type AttemptStore interface {
	GetAttempt(ctx context.Context, key string) (*models.AttemptRecord, error)
	SaveAttempt(ctx context.Context, record *models.AttemptRecord) error
	DeleteAttempt(ctx context.Context, key string) error
}

type ThrottleConfig struct {
	MaxAttempts int
	Window      time.Duration
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MaxAttempts: DefaultMaxAttempts,
		Window:      DefaultAttemptWindow,
	}
}

// Throttle limits consecutive failed logins per identifier within a sliding
// cool-down window. The window is re-anchored on every failure, so a locked
// identifier unlocks only after a full window with no further failures.
type Throttle struct {
	config ThrottleConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewThrottle(config ThrottleConfig, logger *slog.Logger) *Throttle {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Window <= 0 {
		config.Window = DefaultAttemptWindow
	}

	return &Throttle{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source (for testing)
func (t *Throttle) SetClock(now func() time.Time) {
	t.now = now
}

// IdentifierKey derives the counter key for an identifier.
// Raw identifiers never reach a store or a log line.
func IdentifierKey(identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return hex.EncodeToString(sum[:])
}

// Allow reports whether another attempt for identifier is permitted.
// Store faults deny the attempt.
func (t *Throttle) Allow(ctx context.Context, store AttemptStore, identifier string) bool {
	key := IdentifierKey(identifier)

	record, err := store.GetAttempt(ctx, key)
	if err != nil {
		t.logger.Error("attempt store lookup failed, denying attempt",
			pkglogger.IdentifierKeyAttr(key),
			slog.Any("error", err),
		)
		return false
	}
	if record == nil {
		return true
	}

	if t.expired(record) {
		if err := store.DeleteAttempt(ctx, key); err != nil {
			// The stale record is replaced on the next failure anyway
			t.logger.Warn("failed to delete expired attempt record",
				pkglogger.IdentifierKeyAttr(key),
				slog.Any("error", err),
			)
		}
		return true
	}

	return record.FailureCount < t.config.MaxAttempts
}

// RecordFailure counts a failed attempt and restarts the cool-down window
func (t *Throttle) RecordFailure(ctx context.Context, store AttemptStore, identifier string) error {
	key := IdentifierKey(identifier)

	record, err := store.GetAttempt(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: load attempt record: %v", models.ErrTransientStore, err)
	}
	if record == nil || t.expired(record) {
		record = &models.AttemptRecord{Key: key}
	}

	record.FailureCount++
	record.WindowStart = t.now()

	if err := store.SaveAttempt(ctx, record); err != nil {
		return fmt.Errorf("%w: save attempt record: %v", models.ErrTransientStore, err)
	}

	if record.FailureCount >= t.config.MaxAttempts {
		t.logger.Warn("identifier locked out",
			pkglogger.IdentifierKeyAttr(key),
			slog.Int("failures", record.FailureCount),
			slog.Duration("window", t.config.Window),
		)
	}

	return nil
}

// Reset clears the failure history for identifier
func (t *Throttle) Reset(ctx context.Context, store AttemptStore, identifier string) error {
	if err := store.DeleteAttempt(ctx, IdentifierKey(identifier)); err != nil {
		return fmt.Errorf("%w: delete attempt record: %v", models.ErrTransientStore, err)
	}
	return nil
}

// Failures returns the live failure count for identifier, zero once the window has lapsed
func (t *Throttle) Failures(ctx context.Context, store AttemptStore, identifier string) (int, error) {
	record, err := store.GetAttempt(ctx, IdentifierKey(identifier))
	if err != nil {
		return 0, fmt.Errorf("%w: load attempt record: %v", models.ErrTransientStore, err)
	}
	if record == nil || t.expired(record) {
		return 0, nil
	}
	return record.FailureCount, nil
}

func (t *Throttle) expired(record *models.AttemptRecord) bool {
	return t.now().Sub(record.WindowStart) > t.config.Window
}

// SessionAttemptStore keeps counters inside a session record. Changes become
// durable when the owning session is saved.
type SessionAttemptStore struct {
	record *models.SessionRecord
}

func NewSessionAttemptStore(record *models.SessionRecord) *SessionAttemptStore {
	return &SessionAttemptStore{record: record}
}

func (s *SessionAttemptStore) GetAttempt(_ context.Context, key string) (*models.AttemptRecord, error) {
	if s.record == nil || s.record.Attempts == nil {
		return nil, nil
	}
	record := s.record.Attempts[key]
	if record == nil {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

func (s *SessionAttemptStore) SaveAttempt(_ context.Context, record *models.AttemptRecord) error {
	if s.record == nil {
		return fmt.Errorf("session attempt store has no session")
	}
	if s.record.Attempts == nil {
		s.record.Attempts = make(map[string]*models.AttemptRecord)
	}
	copied := *record
	s.record.Attempts[record.Key] = &copied
	return nil
}

func (s *SessionAttemptStore) DeleteAttempt(_ context.Context, key string) error {
	if s.record == nil {
		return nil
	}
	delete(s.record.Attempts, key)
	return nil
}
