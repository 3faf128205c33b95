package model

import (
	"encoding/json"
	"time"
)

// StatusEvent is one recorded agent status message. ID and Timestamp are
// assigned by the store on insert and never change afterwards.
type StatusEvent struct {
	ID         int64           `db:"id" json:"id"`
	Timestamp  time.Time       `db:"timestamp" json:"timestamp"`
	SessionID  string          `db:"session_id" json:"session_id"`
	UserID     string          `db:"user_id" json:"user_id"`
	AgentName  string          `db:"agent_name" json:"agent_name"`
	StatusType string          `db:"status_type" json:"status_type"`
	Message    string          `db:"message" json:"message"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// NewStatusEvent is the insert payload: everything the caller supplies.
// Metadata is optional and stored as NULL when nil.
type NewStatusEvent struct {
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id"`
	AgentName  string          `json:"agent_name"`
	StatusType string          `json:"status_type"`
	Message    string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}
