package types

import "time"

// DeadlineNotificationEvent is published after a dispatch delivered at least
// one message. Downstream consumers (audit, dashboards) subscribe to it.
// JSON tags use snake_case to match the other event payloads on the bus.
type DeadlineNotificationEvent struct {
	EventID         string    `json:"event_id"`
	ReportRequestID int64     `json:"report_request_id"`
	Title           string    `json:"title"`
	Deadline        time.Time `json:"deadline"`
	Trigger         string    `json:"trigger"`
	Sent            int       `json:"sent"`
	Skipped         int       `json:"skipped"`
	Failed          int       `json:"failed"`
	OccurredAt      time.Time `json:"occurred_at"`
	TraceID         string    `json:"trace_id,omitempty"`
}

// EventRoutingKey is the topic routing key used for deadline notification events.
const EventRoutingKey = "report.deadline.notified"
