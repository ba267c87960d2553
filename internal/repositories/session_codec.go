package repositories

import (
	"encoding/json"
	"fmt"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
)

// storedSession is the persisted form of a session. Older writers used
// "user_id" and "user" for the account fields; both are still read.
type storedSession struct {
	models.SessionRecord
	LegacyUserID string              `json:"user_id,omitempty"`
	LegacyUser   *models.AccountInfo `json:"user,omitempty"`
}

func encodeSession(record *models.SessionRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*models.SessionRecord, error) {
	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	record := stored.SessionRecord
	if record.AccountID == "" {
		record.AccountID = stored.LegacyUserID
	}
	if record.Account == nil {
		record.Account = stored.LegacyUser
	}
	return &record, nil
}
