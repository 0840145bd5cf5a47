package events

import (
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated            EventType = "ticket_created"
	EventExternalSyncFailed       EventType = "external_sync_failed"
	EventIntegrationStatusChanged EventType = "integration_status_changed"
	EventHealthCheckCompleted     EventType = "health_check_completed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketID         string                `json:"ticket_id"`
	TicketKey        string                `json:"ticket_key"`
	Priority         domain.TicketPriority `json:"priority"`
	Category         string                `json:"category"`
	Department       string                `json:"department"`
	IntegrationID    *string               `json:"integration_id,omitempty"`
	ExternalTicketID *string               `json:"external_ticket_id,omitempty"`
}

// ExternalSyncFailedPayload payload.
type ExternalSyncFailedPayload struct {
	IntegrationID string `json:"integration_id"`
	TicketKey     string `json:"ticket_key"`
	ErrorCode     string `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
	Retryable     bool   `json:"retryable"`
}

// IntegrationStatusChangedPayload payload.
type IntegrationStatusChangedPayload struct {
	IntegrationID string                   `json:"integration_id"`
	OldStatus     domain.IntegrationStatus `json:"old_status"`
	NewStatus     domain.IntegrationStatus `json:"new_status"`
	Reason        string                   `json:"reason,omitempty"`
}

// HealthCheckCompletedPayload payload.
type HealthCheckCompletedPayload struct {
	IntegrationID string  `json:"integration_id"`
	Healthy       bool    `json:"healthy"`
	Detail        string  `json:"detail,omitempty"`
	Error         *string `json:"error,omitempty"`
}
