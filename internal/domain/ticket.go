package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Ticket is the aggregate for support requests. Category, Priority and
// Department arrive pre-classified upstream; this service treats them as
// opaque routing input. IntegrationID is set once at creation and never
// changed afterward.
type Ticket struct {
	ID                string
	ExternalKey       string
	RequesterID       string
	Title             string
	Description       string
	Status            TicketStatus
	Priority          TicketPriority
	Category          string
	Department        string
	Tags              []string
	IntegrationID     *string
	ExternalTicketID  *string
	ExternalTicketURL *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ClosedAt          *time.Time
}

// TicketAttributes carries the routing-relevant subset of a ticket.
type TicketAttributes struct {
	Category   string
	Priority   string
	Department string
}

// Attributes extracts routing input from a ticket.
func (t *Ticket) Attributes() TicketAttributes {
	return TicketAttributes{
		Category:   t.Category,
		Priority:   string(t.Priority),
		Department: t.Department,
	}
}
