package types

import "time"

// SessionSummary is one entry of the session list.
type SessionSummary struct {
	ID string `json:"id"`
}

// SessionDetail describes a live session.
type SessionDetail struct {
	ID           string    `json:"id"`
	Rows         uint16    `json:"rows"`
	Cols         uint16    `json:"cols"`
	Clients      int       `json:"clients"`
	HistoryBytes int       `json:"historyBytes"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SessionCreateRequest is the request body for creating a session.
// An empty ID asks the server to generate one.
type SessionCreateRequest struct {
	ID string `json:"id,omitempty"`
}

// SessionEvent is a lifecycle notification as delivered over
// /api/events: {"type":"SessionCreated","data":"<id>"}.
type SessionEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// AuditRecord is one session's entry in the audit journal.
type AuditRecord struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}
