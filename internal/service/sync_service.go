package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/platform"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/secrets"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// TxBeginner starts a database transaction; satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SyncService performs the two-phase ticket creation: stage the row inside a
// local transaction, create the external record, then commit with the
// external link or roll the whole thing back. A ticket either exists
// complete with its external link, or never existed.
type SyncService struct {
	db           TxBeginner
	tickets      repository.TicketRepository
	integrations repository.IntegrationRepository
	syncLog      repository.SyncLogRepository
	routing      *RoutingService
	box          *secrets.Box
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger

	now         func() time.Time
	newPlatform func(name string, cfg platform.Config) (platform.Platform, error)
}

// SyncDependencies bundles collaborators for the orchestrator.
type SyncDependencies struct {
	DB              TxBeginner
	TicketRepo      repository.TicketRepository
	IntegrationRepo repository.IntegrationRepository
	SyncLogRepo     repository.SyncLogRepository
	Routing         *RoutingService
	CredentialBox   *secrets.Box
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

// NewSyncService constructs the orchestrator.
func NewSyncService(deps SyncDependencies) *SyncService {
	return &SyncService{
		db:           deps.DB,
		tickets:      deps.TicketRepo,
		integrations: deps.IntegrationRepo,
		syncLog:      deps.SyncLogRepo,
		routing:      deps.Routing,
		box:          deps.CredentialBox,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		now:          time.Now,
		newPlatform:  platform.New,
	}
}

// TicketCreateInput describes ticket creation payload. Category, Priority
// and Department come pre-classified from the caller.
type TicketCreateInput struct {
	RequesterID   string
	Title         string
	Description   string
	Priority      domain.TicketPriority
	Category      string
	Department    string
	Tags          []string
	IntegrationID *string
	RequireSync   bool
}

// IntegrationResult reports the sync half of a creation to the caller.
type IntegrationResult struct {
	Attempted         bool
	Success           bool
	IntegrationID     *string
	ExternalTicketID  *string
	ExternalTicketURL *string
	ErrorMessage      *string
}

// CreateTicket routes and creates a ticket. Routing failures surface before
// any row is written; external-create failures roll the staged row back so
// no reader ever observes a ticket with an integration but no external link.
func (s *SyncService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, *IntegrationResult, error) {
	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		RequesterID: input.RequesterID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    input.Priority,
		Category:    input.Category,
		Department:  input.Department,
		Tags:        input.Tags,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	selected, err := s.routing.Select(ctx, RouteRequest{
		Attributes:    ticket.Attributes(),
		IntegrationID: input.IntegrationID,
		RequireSync:   input.RequireSync,
	})
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	// Rollback after commit is a no-op; this only covers the error paths.
	defer func() { _ = tx.Rollback(ctx) }()

	if selected != nil {
		id := selected.ID
		ticket.IntegrationID = &id
	}
	if err := s.tickets.CreateTx(ctx, tx, ticket); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	if selected == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, nil, apperrors.MapError(err)
		}
		s.publishTicketCreated(ctx, ticket)
		return ticket, &IntegrationResult{}, nil
	}

	callStart := time.Now()
	created, callErr := s.createExternal(ctx, selected, ticket)
	callDuration := time.Since(callStart)

	// Telemetry is recorded whether or not the ticket transaction survives;
	// health tracking is deliberately decoupled from transactional success.
	s.recordOutcome(ctx, selected, ticket.ExternalKey, callErr, callDuration)

	if callErr != nil {
		// The deferred rollback discards the staged row.
		return nil, nil, callErr
	}

	if err := s.tickets.SetExternalLinkTx(ctx, tx, ticket.ID, created.ExternalID, created.ExternalURL); err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, apperrors.MapError(err)
	}

	ticket.ExternalTicketID = &created.ExternalID
	if created.ExternalURL != "" {
		url := created.ExternalURL
		ticket.ExternalTicketURL = &url
	}
	s.publishTicketCreated(ctx, ticket)

	return ticket, &IntegrationResult{
		Attempted:         true,
		Success:           true,
		IntegrationID:     ticket.IntegrationID,
		ExternalTicketID:  ticket.ExternalTicketID,
		ExternalTicketURL: ticket.ExternalTicketURL,
	}, nil
}

// createExternal performs the outbound create under the integration's
// timeout. The call context is detached from caller cancellation: an
// abandoned in-flight create would risk an orphaned external ticket, so
// cancellation may only prevent starting the call, never abort it.
func (s *SyncService) createExternal(ctx context.Context, integration *domain.Integration, ticket *domain.Ticket) (*platform.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.MapError(err)
	}

	creds, err := s.box.Open(integration.Credentials)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	adapter, err := s.newPlatform(integration.Platform, platform.Config{
		IntegrationID: integration.ID,
		Name:          integration.Name,
		Credentials:   creds,
	})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), integration.RequestTimeout())
	defer cancel()

	result, err := adapter.Create(callCtx, ticket)
	if err != nil {
		return nil, classifyPlatformError(err, integration)
	}
	return result, nil
}

// classifyPlatformError maps adapter errors onto the sync taxonomy.
// Anything not already classified is treated as transient and retryable.
func classifyPlatformError(err error, integration *domain.Integration) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return apperrors.NewExternalUnreachable(err, map[string]any{
		"integration_id": integration.ID,
		"platform":       integration.Platform,
	})
}

// recordOutcome updates the integration failure budget, writes the audit
// row and bumps metrics. It runs on a context detached from the caller so a
// cancelled request still leaves accurate telemetry behind.
func (s *SyncService) recordOutcome(ctx context.Context, integration *domain.Integration, ticketKey string, callErr error, duration time.Duration) {
	bg := context.WithoutCancel(ctx)
	now := s.now()

	outcome := domain.SyncOutcomeSuccess
	var errCode, errMsg *string
	if callErr != nil {
		domainErr := apperrors.ToDomainError(callErr)
		code := domainErr.Code
		msg := domainErr.Message
		errCode, errMsg = &code, &msg
		outcome = domain.SyncOutcomeRejected
		if domainErr.Retryable {
			outcome = domain.SyncOutcomeUnreachable
		}
	}

	if err := s.integrations.RecordRequest(bg, integration.ID, now, callErr == nil, deref(errMsg)); err != nil {
		s.logger.Error("record request outcome", zap.String("integration_id", integration.ID), zap.Error(err))
	}

	attempt := &domain.SyncAttempt{
		IntegrationID: integration.ID,
		TicketKey:     ticketKey,
		Outcome:       outcome,
		ErrorCode:     errCode,
		ErrorMessage:  errMsg,
		DurationMs:    duration.Milliseconds(),
	}
	if err := s.syncLog.Create(bg, attempt); err != nil {
		s.logger.Error("write sync attempt", zap.String("integration_id", integration.ID), zap.Error(err))
	}

	s.metrics.RecordExternalCall(integration.ID, string(outcome), duration)

	if callErr != nil {
		s.publishSyncFailed(bg, integration.ID, ticketKey, callErr)
		s.publishStatusChangeIfTripped(bg, integration)
	}
}

// publishStatusChangeIfTripped re-reads the integration and announces a
// circuit trip caused by the request just recorded.
func (s *SyncService) publishStatusChangeIfTripped(ctx context.Context, before *domain.Integration) {
	after, err := s.integrations.GetByID(ctx, before.ID)
	if err != nil {
		return
	}
	if before.Status != domain.IntegrationStatusError && after.Status == domain.IntegrationStatusError {
		s.publishEvent(ctx, events.Event{
			Type: events.EventIntegrationStatusChanged,
			Payload: events.IntegrationStatusChangedPayload{
				IntegrationID: after.ID,
				OldStatus:     before.Status,
				NewStatus:     after.Status,
				Reason:        "failure threshold reached",
			},
		})
	}
}

func (s *SyncService) publishTicketCreated(ctx context.Context, ticket *domain.Ticket) {
	s.publishEvent(ctx, events.Event{
		Type: events.EventTicketCreated,
		Payload: events.TicketCreatedPayload{
			TicketID:         ticket.ID,
			TicketKey:        ticket.ExternalKey,
			Priority:         ticket.Priority,
			Category:         ticket.Category,
			Department:       ticket.Department,
			IntegrationID:    ticket.IntegrationID,
			ExternalTicketID: ticket.ExternalTicketID,
		},
	})
}

func (s *SyncService) publishSyncFailed(ctx context.Context, integrationID, ticketKey string, callErr error) {
	domainErr := apperrors.ToDomainError(callErr)
	s.publishEvent(ctx, events.Event{
		Type: events.EventExternalSyncFailed,
		Payload: events.ExternalSyncFailedPayload{
			IntegrationID: integrationID,
			TicketKey:     ticketKey,
			ErrorCode:     domainErr.Code,
			ErrorMessage:  domainErr.Message,
			Retryable:     domainErr.Retryable,
		},
	})
}

func (s *SyncService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
