package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/platform"
	"github.com/spec-kit/ticket-sync/internal/secrets"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

const testCredentialKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type syncFixture struct {
	svc          *SyncService
	db           *fakeDB
	tickets      *fakeTicketRepo
	integrations *fakeIntegrationRepo
	syncLog      *fakeSyncLogRepo
	dispatcher   *capturingDispatcher
	metrics      *observability.Metrics
	box          *secrets.Box
}

func newSyncFixture(t *testing.T, integrations ...*domain.Integration) *syncFixture {
	t.Helper()

	box, err := secrets.NewBox(testCredentialKey)
	require.NoError(t, err)

	sealed, err := box.Seal([]byte(`{"token":"secret"}`))
	require.NoError(t, err)
	for _, integration := range integrations {
		if integration.Credentials == nil {
			integration.Credentials = sealed
		}
	}

	fx := &syncFixture{
		db:           &fakeDB{},
		tickets:      newFakeTicketRepo(),
		integrations: newFakeIntegrationRepo(integrations...),
		syncLog:      &fakeSyncLogRepo{},
		dispatcher:   &capturingDispatcher{},
		metrics:      observability.NewMetrics(),
		box:          box,
	}
	fx.svc = NewSyncService(SyncDependencies{
		DB:              fx.db,
		TicketRepo:      fx.tickets,
		IntegrationRepo: fx.integrations,
		SyncLogRepo:     fx.syncLog,
		Routing:         newTestRoutingService(fx.integrations),
		CredentialBox:   box,
		Dispatcher:      fx.dispatcher,
		Metrics:         fx.metrics,
		Logger:          zap.NewNop(),
	})
	fx.svc.now = func() time.Time { return routingNow }
	return fx
}

func TestCreateTicketInternalOnly(t *testing.T) {
	fx := newSyncFixture(t)

	ticket, result, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "  printer on fire  ",
	})
	require.NoError(t, err)
	require.NotNil(t, ticket)

	assert.Equal(t, "printer on fire", ticket.Title)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority, "empty priority defaults to MEDIUM")
	assert.Nil(t, ticket.IntegrationID)
	assert.NotEmpty(t, ticket.ExternalKey)

	require.NotNil(t, result)
	assert.False(t, result.Attempted)

	require.NotNil(t, fx.db.lastTx())
	assert.True(t, fx.db.lastTx().committed)
	assert.Equal(t, 0, fx.integrations.recordRequestCalls)
	assert.Empty(t, fx.syncLog.attempts)
	assert.Len(t, fx.dispatcher.ofType(events.EventTicketCreated), 1)
}

func TestCreateTicketSyncSuccess(t *testing.T) {
	integration := routableIntegration("int-1", routingNow.Add(-time.Hour))
	fx := newSyncFixture(t, integration)

	adapter := &fakePlatform{createResult: &platform.CreateResult{
		ExternalID:  "EXT-42",
		ExternalURL: "https://ext.example/EXT-42",
	}}
	fx.svc.newPlatform = fixedPlatform(adapter, nil)

	ticket, result, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
		Priority:    domain.TicketPriorityHigh,
	})
	require.NoError(t, err)
	require.NotNil(t, ticket)

	require.NotNil(t, ticket.IntegrationID)
	assert.Equal(t, "int-1", *ticket.IntegrationID)
	require.NotNil(t, ticket.ExternalTicketID)
	assert.Equal(t, "EXT-42", *ticket.ExternalTicketID)
	require.NotNil(t, ticket.ExternalTicketURL)
	assert.Equal(t, "https://ext.example/EXT-42", *ticket.ExternalTicketURL)

	require.NotNil(t, result)
	assert.True(t, result.Attempted)
	assert.True(t, result.Success)

	assert.True(t, fx.db.lastTx().committed)
	assert.Equal(t, [2]string{"EXT-42", "https://ext.example/EXT-42"}, fx.tickets.links[ticket.ID])

	stored := fx.integrations.stored("int-1")
	assert.Equal(t, int64(1), stored.SuccessfulRequests)
	assert.Equal(t, 1, stored.CurrentHourRequests)

	require.Len(t, fx.syncLog.attempts, 1)
	assert.Equal(t, domain.SyncOutcomeSuccess, fx.syncLog.attempts[0].Outcome)
	assert.Equal(t, ticket.ExternalKey, fx.syncLog.attempts[0].TicketKey)

	assert.Equal(t, int64(1), fx.metrics.ExternalCallCount("int-1", string(domain.SyncOutcomeSuccess)))
}

func TestCreateTicketUnreachableRollsBack(t *testing.T) {
	integration := routableIntegration("int-1", routingNow.Add(-time.Hour))
	fx := newSyncFixture(t, integration)

	adapter := &fakePlatform{createErr: apperrors.NewExternalUnreachable(errors.New("dial timeout"), nil)}
	fx.svc.newPlatform = fixedPlatform(adapter, nil)

	ticket, result, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
	})
	require.Error(t, err)
	assert.Nil(t, ticket)
	assert.Nil(t, result)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalUnreachable))
	assert.True(t, apperrors.IsRetryable(err))

	// The staged row was discarded; no partial ticket survives.
	assert.True(t, fx.db.lastTx().rolledBack)
	assert.False(t, fx.db.lastTx().committed)
	assert.Empty(t, fx.tickets.links)

	// Telemetry survives the rollback.
	stored := fx.integrations.stored("int-1")
	assert.Equal(t, 1, stored.ConsecutiveFailures)
	assert.Equal(t, int64(1), stored.FailedRequests)
	assert.Equal(t, 1, stored.CurrentHourRequests, "a failed call still consumes quota")

	require.Len(t, fx.syncLog.attempts, 1)
	assert.Equal(t, domain.SyncOutcomeUnreachable, fx.syncLog.attempts[0].Outcome)

	assert.Len(t, fx.dispatcher.ofType(events.EventExternalSyncFailed), 1)
	assert.Empty(t, fx.dispatcher.ofType(events.EventTicketCreated))
}

func TestCreateTicketRejectedIsVerbatimAndFinal(t *testing.T) {
	integration := routableIntegration("int-1", routingNow.Add(-time.Hour))
	fx := newSyncFixture(t, integration)

	adapter := &fakePlatform{createErr: apperrors.NewExternalRejected("duplicate external subject", nil)}
	fx.svc.newPlatform = fixedPlatform(adapter, nil)

	_, _, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalRejected))
	assert.False(t, apperrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "duplicate external subject")

	require.Len(t, fx.syncLog.attempts, 1)
	assert.Equal(t, domain.SyncOutcomeRejected, fx.syncLog.attempts[0].Outcome)
	require.NotNil(t, fx.syncLog.attempts[0].ErrorMessage)
	assert.Equal(t, "duplicate external subject", *fx.syncLog.attempts[0].ErrorMessage)
}

func TestCreateTicketUnclassifiedErrorIsRetryable(t *testing.T) {
	integration := routableIntegration("int-1", routingNow.Add(-time.Hour))
	fx := newSyncFixture(t, integration)

	adapter := &fakePlatform{createErr: errors.New("tls handshake broke")}
	fx.svc.newPlatform = fixedPlatform(adapter, nil)

	_, _, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalUnreachable))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestCreateTicketTripsCircuitAndAnnounces(t *testing.T) {
	integration := routableIntegration("int-1", routingNow.Add(-time.Hour))
	integration.AutoDisableOnError = true
	integration.FailureThreshold = 2
	integration.ConsecutiveFailures = 1
	fx := newSyncFixture(t, integration)

	adapter := &fakePlatform{createErr: apperrors.NewExternalUnreachable(errors.New("down"), nil)}
	fx.svc.newPlatform = fixedPlatform(adapter, nil)

	_, _, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
	})
	require.Error(t, err)

	assert.Equal(t, domain.IntegrationStatusError, fx.integrations.stored("int-1").Status)

	changes := fx.dispatcher.ofType(events.EventIntegrationStatusChanged)
	require.Len(t, changes, 1)
	payload, ok := changes[0].Payload.(events.IntegrationStatusChangedPayload)
	require.True(t, ok)
	assert.Equal(t, domain.IntegrationStatusError, payload.NewStatus)
}

func TestCreateTicketRoutingFailureWritesNothing(t *testing.T) {
	fx := newSyncFixture(t)

	_, _, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
		RequireSync: true,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIntegrationUnavailable))

	assert.Empty(t, fx.db.txs, "routing failures surface before any transaction starts")
	assert.Empty(t, fx.tickets.created)
	assert.Empty(t, fx.syncLog.attempts)
}

func TestCreateTicketCancelledBeforeCall(t *testing.T) {
	integration := routableIntegration("int-1", routingNow.Add(-time.Hour))
	fx := newSyncFixture(t, integration)

	adapter := &fakePlatform{}
	fx.svc.newPlatform = fixedPlatform(adapter, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := fx.svc.CreateTicket(ctx, TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
	})
	require.Error(t, err)
	assert.Equal(t, 0, adapter.createCalls, "an already-cancelled caller never starts the external call")
	assert.True(t, fx.db.lastTx().rolledBack)
}

func TestCreateTicketUnsealableCredentials(t *testing.T) {
	integration := routableIntegration("int-1", routingNow.Add(-time.Hour))
	integration.Credentials = []byte("not a sealed blob")
	fx := newSyncFixture(t, integration)

	adapter := &fakePlatform{}
	fx.svc.newPlatform = fixedPlatform(adapter, nil)

	_, _, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
	})
	require.Error(t, err)
	assert.Equal(t, 0, adapter.createCalls)
	assert.True(t, fx.db.lastTx().rolledBack)
}

func TestCreateTicketPassesUnsealedCredentialsToAdapter(t *testing.T) {
	integration := routableIntegration("int-1", routingNow.Add(-time.Hour))
	fx := newSyncFixture(t, integration)

	var seen []byte
	fx.svc.newPlatform = func(name string, cfg platform.Config) (platform.Platform, error) {
		seen = cfg.Credentials
		return &fakePlatform{}, nil
	}

	_, _, err := fx.svc.CreateTicket(context.Background(), TicketCreateInput{
		RequesterID: "user-1",
		Title:       "cannot log in",
	})
	require.NoError(t, err)

	var creds map[string]string
	require.NoError(t, json.Unmarshal(seen, &creds))
	assert.Equal(t, "secret", creds["token"])
}
