package domain

import "time"

// SyncOutcome classifies one external sync attempt.
type SyncOutcome string

const (
	SyncOutcomeSuccess     SyncOutcome = "SUCCESS"
	SyncOutcomeUnreachable SyncOutcome = "UNREACHABLE"
	SyncOutcomeRejected    SyncOutcome = "REJECTED"
)

// SyncAttempt is the audit record of one outbound create call. It is written
// outside the ticket transaction, so it survives rollback; TicketKey rather
// than a ticket foreign key, because the ticket row may never have existed.
type SyncAttempt struct {
	ID            string
	IntegrationID string
	TicketKey     string
	Outcome       SyncOutcome
	ErrorCode     *string
	ErrorMessage  *string
	DurationMs    int64
	CreatedAt     time.Time
}
