package models

import (
	"time"
)

// Account is the credential-bearing record looked up at login
type Account struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Info returns the denormalized account snapshot stored inside a session
func (a *Account) Info() *AccountInfo {
	return &AccountInfo{
		ID:       a.ID,
		Email:    a.Email,
		Username: a.Username,
	}
}
