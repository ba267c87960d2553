package models

import "time"

// AccountInfo is the denormalized account snapshot older code paths wrote into sessions.
// AccountID on SessionRecord is the canonical field; this is kept for display and compatibility.
type AccountInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// SessionRecord is the server-side session state keyed by the session cookie value
type SessionRecord struct {
	ID             string                    `json:"id"`
	AccountID      string                    `json:"account_id,omitempty"`
	Account        *AccountInfo              `json:"account,omitempty"`
	Fingerprint    string                    `json:"fingerprint"`
	CSRFNonce      string                    `json:"csrf_nonce,omitempty"`
	Attempts       map[string]*AttemptRecord `json:"attempts,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	LastActivityAt time.Time                 `json:"last_activity_at"`
}

// Authenticated reports whether the session is bound to an account
func (s *SessionRecord) Authenticated() bool {
	return s != nil && s.AccountID != ""
}

// AttemptRecord tracks failed logins for one hashed identifier
type AttemptRecord struct {
	Key          string    `json:"key"`
	FailureCount int       `json:"failure_count"`
	WindowStart  time.Time `json:"window_start"`
}
