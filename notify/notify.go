// Package notify delivers build pipeline event notifications.
package notify

import (
	"context"
	"time"
)

// EventType represents the type of pipeline event.
type EventType string

// Event type constants.
const (
	EventBuildStarted        EventType = "build_started"
	EventBuildCompleted      EventType = "build_completed"
	EventBuildFailed         EventType = "build_failed"
	EventStageCompleted      EventType = "stage_completed"
	EventStageFailed         EventType = "stage_failed"
	EventValidationFailed    EventType = "validation_failed"
	EventRefinementExhausted EventType = "refinement_exhausted"
)

// Severity constants for notifications.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Event describes a pipeline event for notification.
type Event struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Stage     string         `json:"stage,omitempty"`
	Iteration int            `json:"iteration,omitempty"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Notifier sends notifications about pipeline events.
type Notifier interface {
	// Notify sends a notification. Implementations should be non-blocking
	// and handle errors gracefully (log, don't crash).
	Notify(ctx context.Context, event Event) error
}
