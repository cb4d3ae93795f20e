package domain

import "time"

// EventType classifies engine events published to subscribers.
type EventType string

const (
	EventOrderFilled     EventType = "order_filled"
	EventOrderRejected   EventType = "order_rejected"
	EventOrderFailed     EventType = "order_failed"
	EventPositionOpened  EventType = "position_opened"
	EventPositionClosed  EventType = "position_closed"
	EventHaltTriggered   EventType = "halt_triggered"
	EventHaltCleared     EventType = "halt_cleared"
	EventDailyReset      EventType = "daily_reset"
	EventRiskConfigReset EventType = "risk_config_reloaded"
)

// Event is a fire-and-forget notification about engine activity.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   map[string]interface{}
}

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID        int64
	CreatedAt time.Time
	Component string
	EventType string
	Message   string
	Payload   map[string]interface{}
}
