// internal/app/features/auditlog/types.go
package auditlog

import (
	"time"
)

// listItem is one audit event in the group history.
type listItem struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Category   string            `json:"category"`
	EventType  string            `json:"event_type"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorName  string            `json:"actor_name,omitempty"` // Resolved from ActorID
	UserID     string            `json:"user_id,omitempty"`
	TargetName string            `json:"target_name,omitempty"` // Resolved from UserID
	Success    bool              `json:"success"`
	Details    map[string]string `json:"details,omitempty"`
}

// listData is the response for the group history.
type listData struct {
	Items []listItem `json:"items"`

	// Filters
	EventType string `json:"event_type,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`

	// Pagination
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}
