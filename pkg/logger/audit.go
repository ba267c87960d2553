package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLoginSuccess   = "login_success"
	EventLoginFailed    = "login_failed"
	EventLoginThrottled = "login_throttled"
	EventSessionHijack  = "session_hijack_suspected"
	EventSessionExpired = "session_expired"
	EventLogout         = "logout"
	EventAccountCreated = "account_bootstrapped"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	AccountID     string
	IdentifierKey string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogAuthAttempt logs login attempts, whatever their outcome
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := al.baseAttrs("auth", event.EventType)
	attrs = append(attrs, slog.Bool("success", event.Success))

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IdentifierKey != "" {
		attrs = append(attrs, IdentifierKeyAttr(event.IdentifierKey))
	}
	attrs = al.appendClient(attrs, event)

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogSessionEvent logs session invalidation and logout
func (al *AuditLogger) LogSessionEvent(event AuditEvent) {
	attrs := al.baseAttrs("session", event.EventType)

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	attrs = al.appendClient(attrs, event)

	level := slog.LevelInfo
	if event.EventType == EventSessionHijack {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogAccountAction logs general account actions
func (al *AuditLogger) LogAccountAction(eventType, accountID string, metadata map[string]string) {
	attrs := al.baseAttrs("account", eventType)
	attrs = append(attrs, slog.String("account_id", accountID))

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

func (al *AuditLogger) baseAttrs(auditType, eventType string) []slog.Attr {
	return []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
}

func (al *AuditLogger) appendClient(attrs []slog.Attr, event AuditEvent) []slog.Attr {
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	return attrs
}
