package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeSignIn         EventType = "auth.sign_in"
	EventTypeSignInFailed   EventType = "auth.sign_in_failed"
	EventTypeSessionRevoked EventType = "auth.session_revoked"

	// Realtime capability events
	EventTypeRealtimeTokenIssued EventType = "realtime.token_issued"
	EventTypeRealtimeTokenDenied EventType = "realtime.token_denied"

	// Rate limit events
	EventTypeRateLimitExceeded EventType = "ratelimit.exceeded"
	EventTypeRateLimitFailOpen EventType = "ratelimit.fail_open"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit trail entry
type Event struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID    *int64 `json:"user_id,omitempty"`
	SessionID *int64 `json:"session_id,omitempty"`

	// Rate limit context
	Action     string `json:"action,omitempty"`
	Identifier string `json:"identifier,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching the audit trail
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	UserID *int64

	// Event filters
	EventTypes []EventType
	Status     *EventStatus
	Action     string

	// Request context filters
	IPAddress string
	RequestID string

	// Pagination
	Limit  int
	Offset int
}
