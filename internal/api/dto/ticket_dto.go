package dto

import (
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/service"
)

// CreateTicketRequest payload. IntegrationID explicitly names a target
// integration; RequireSync demands an external record and fails the whole
// creation when none can be made.
type CreateTicketRequest struct {
	Title         string                `json:"title" validate:"required,max=500"`
	Description   string                `json:"description"`
	Priority      domain.TicketPriority `json:"priority"`
	Category      string                `json:"category"`
	Department    string                `json:"department"`
	Tags          []string              `json:"tags"`
	IntegrationID *string               `json:"integration_id"`
	RequireSync   bool                  `json:"require_sync"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID                string                `json:"id"`
	ExternalKey       string                `json:"external_key"`
	RequesterID       string                `json:"requester_id"`
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	Status            domain.TicketStatus   `json:"status"`
	Priority          domain.TicketPriority `json:"priority"`
	Category          string                `json:"category"`
	Department        string                `json:"department"`
	Tags              []string              `json:"tags"`
	IntegrationID     *string               `json:"integration_id"`
	ExternalTicketID  *string               `json:"external_ticket_id"`
	ExternalTicketURL *string               `json:"external_ticket_url"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// IntegrationResultResponse reports the sync half of a creation.
type IntegrationResultResponse struct {
	Success           bool    `json:"success"`
	IntegrationID     *string `json:"integration_id,omitempty"`
	ExternalTicketID  *string `json:"external_ticket_id,omitempty"`
	ExternalTicketURL *string `json:"external_ticket_url,omitempty"`
	ErrorMessage      *string `json:"error_message,omitempty"`
}

// CreateTicketResponse bundles the ticket with its integration result.
type CreateTicketResponse struct {
	Ticket            TicketResponse             `json:"ticket"`
	IntegrationResult *IntegrationResultResponse `json:"integration_result,omitempty"`
}

// ToTicketResponse maps a domain ticket.
func ToTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                t.ID,
		ExternalKey:       t.ExternalKey,
		RequesterID:       t.RequesterID,
		Title:             t.Title,
		Description:       t.Description,
		Status:            t.Status,
		Priority:          t.Priority,
		Category:          t.Category,
		Department:        t.Department,
		Tags:              t.Tags,
		IntegrationID:     t.IntegrationID,
		ExternalTicketID:  t.ExternalTicketID,
		ExternalTicketURL: t.ExternalTicketURL,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

// ToIntegrationResultResponse maps the orchestrator result; nil when no
// sync was attempted.
func ToIntegrationResultResponse(r *service.IntegrationResult) *IntegrationResultResponse {
	if r == nil || !r.Attempted {
		return nil
	}
	return &IntegrationResultResponse{
		Success:           r.Success,
		IntegrationID:     r.IntegrationID,
		ExternalTicketID:  r.ExternalTicketID,
		ExternalTicketURL: r.ExternalTicketURL,
		ErrorMessage:      r.ErrorMessage,
	}
}
