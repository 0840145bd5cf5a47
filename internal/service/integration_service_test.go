package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/secrets"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

type integrationFixture struct {
	svc          *IntegrationService
	integrations *fakeIntegrationRepo
	syncLog      *fakeSyncLogRepo
	dispatcher   *capturingDispatcher
	box          *secrets.Box
}

func newIntegrationFixture(t *testing.T, items ...*domain.Integration) *integrationFixture {
	t.Helper()

	box, err := secrets.NewBox(testCredentialKey)
	require.NoError(t, err)

	sealed, err := box.Seal([]byte(`{"token":"secret"}`))
	require.NoError(t, err)
	for _, item := range items {
		if item.Credentials == nil {
			item.Credentials = sealed
		}
	}

	fx := &integrationFixture{
		integrations: newFakeIntegrationRepo(items...),
		syncLog:      &fakeSyncLogRepo{},
		dispatcher:   &capturingDispatcher{},
		box:          box,
	}
	fx.svc = NewIntegrationService(IntegrationDependencies{
		IntegrationRepo: fx.integrations,
		SyncLogRepo:     fx.syncLog,
		CredentialBox:   box,
		Dispatcher:      fx.dispatcher,
		Logger:          zap.NewNop(),
	})
	return fx
}

func validInput() IntegrationInput {
	return IntegrationInput{
		Name:     "primary desk",
		Platform: "memory",
		AuthType: "token",
		Credentials: map[string]string{
			"token": "abc123",
		},
		RateLimitPerHour:   100,
		FailureThreshold:   5,
		AutoDisableOnError: true,
	}
}

func TestCreateIntegration(t *testing.T) {
	fx := newIntegrationFixture(t)

	created, err := fx.svc.CreateIntegration(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.IntegrationStatusPending, created.Status, "new integrations start PENDING")
	assert.True(t, created.Enabled)
	assert.Equal(t, domain.HealthCheckUnknown, created.HealthCheckStatus)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.RateLimitResetAt.IsZero())

	// Credentials are sealed at rest and round-trip through the box.
	assert.NotContains(t, string(created.Credentials), "abc123")
	raw, err := fx.box.Open(created.Credentials)
	require.NoError(t, err)
	var creds map[string]string
	require.NoError(t, json.Unmarshal(raw, &creds))
	assert.Equal(t, "abc123", creds["token"])
}

func TestCreateIntegrationAppliesSyncDefaults(t *testing.T) {
	fx := newIntegrationFixture(t)
	fx.svc.defaults = config.SyncConfig{
		DefaultTimeoutSeconds: 20,
		DefaultRateLimitHour:  500,
		DefaultFailureLimit:   3,
	}

	t.Run("omitted knobs take the deployment defaults", func(t *testing.T) {
		input := validInput()
		input.RateLimitPerHour = 0
		input.FailureThreshold = 0
		input.RequestTimeoutSeconds = 0

		created, err := fx.svc.CreateIntegration(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, 500, created.RateLimitPerHour)
		assert.Equal(t, 3, created.FailureThreshold)
		assert.Equal(t, 20, created.RequestTimeoutSeconds)
	})

	t.Run("explicit values win over defaults", func(t *testing.T) {
		input := validInput()
		input.RateLimitPerHour = 100
		input.FailureThreshold = 8
		input.RequestTimeoutSeconds = 45

		created, err := fx.svc.CreateIntegration(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, 100, created.RateLimitPerHour)
		assert.Equal(t, 8, created.FailureThreshold)
		assert.Equal(t, 45, created.RequestTimeoutSeconds)
	})

	t.Run("update replaces verbatim so zero stays settable", func(t *testing.T) {
		created, err := fx.svc.CreateIntegration(context.Background(), validInput())
		require.NoError(t, err)

		input := validInput()
		input.Platform = ""
		input.RateLimitPerHour = 0

		updated, err := fx.svc.UpdateIntegration(context.Background(), created.ID, input)
		require.NoError(t, err)
		assert.Equal(t, 0, updated.RateLimitPerHour, "explicit zero means unlimited")
	})
}

func TestCreateIntegrationValidation(t *testing.T) {
	fx := newIntegrationFixture(t)

	t.Run("blank name", func(t *testing.T) {
		input := validInput()
		input.Name = "   "
		_, err := fx.svc.CreateIntegration(context.Background(), input)
		require.Error(t, err)
	})

	t.Run("unknown platform", func(t *testing.T) {
		input := validInput()
		input.Platform = "fax-machine"
		_, err := fx.svc.CreateIntegration(context.Background(), input)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigurationInvalid))
	})

	t.Run("unknown auth type", func(t *testing.T) {
		input := validInput()
		input.AuthType = "carrier-pigeon"
		_, err := fx.svc.CreateIntegration(context.Background(), input)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigurationInvalid))
	})

	t.Run("missing credential fields", func(t *testing.T) {
		input := validInput()
		input.AuthType = "basic"
		input.Credentials = map[string]string{"username": "svc"}
		_, err := fx.svc.CreateIntegration(context.Background(), input)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigurationInvalid))

		var domainErr *apperrors.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, []string{"password"}, domainErr.Details["missing"])
	})

	t.Run("malformed maintenance window", func(t *testing.T) {
		input := validInput()
		input.MaintenanceWindowStart = "half past nine"
		input.MaintenanceWindowEnd = "10:00"
		_, err := fx.svc.CreateIntegration(context.Background(), input)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigurationInvalid))
	})
}

func TestUpdateIntegration(t *testing.T) {
	fx := newIntegrationFixture(t)
	created, err := fx.svc.CreateIntegration(context.Background(), validInput())
	require.NoError(t, err)

	t.Run("platform is immutable", func(t *testing.T) {
		input := validInput()
		input.Platform = "webhook"
		input.Credentials = map[string]string{"endpoint": "https://hooks.example"}
		_, err := fx.svc.UpdateIntegration(context.Background(), created.ID, input)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigurationInvalid))
	})

	t.Run("config fields are replaced", func(t *testing.T) {
		input := validInput()
		input.Platform = ""
		input.Name = "renamed desk"
		input.RateLimitPerHour = 250
		input.SupportsCategories = []string{"billing"}

		updated, err := fx.svc.UpdateIntegration(context.Background(), created.ID, input)
		require.NoError(t, err)
		assert.Equal(t, "renamed desk", updated.Name)
		assert.Equal(t, 250, updated.RateLimitPerHour)
		assert.Equal(t, []string{"billing"}, updated.SupportsCategories)
		assert.Equal(t, "memory", updated.Platform)
	})

	t.Run("empty credentials keep the sealed blob", func(t *testing.T) {
		before := fx.integrations.stored(created.ID).Credentials

		input := validInput()
		input.Platform = ""
		input.Credentials = nil
		input.AuthType = "none"

		updated, err := fx.svc.UpdateIntegration(context.Background(), created.ID, input)
		require.NoError(t, err)
		assert.Equal(t, before, updated.Credentials)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := fx.svc.UpdateIntegration(context.Background(), "int-missing", validInput())
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, "NOT_FOUND"))
	})
}

func TestTestConnectionActivatesPending(t *testing.T) {
	pending := &domain.Integration{
		ID:       "int-1",
		Name:     "primary desk",
		Platform: "memory",
		Status:   domain.IntegrationStatusPending,
		Enabled:  true,
	}
	fx := newIntegrationFixture(t, pending)
	fx.svc.newPlatform = fixedPlatform(&fakePlatform{}, nil)

	info, err := fx.svc.TestConnection(context.Background(), "int-1")
	require.NoError(t, err)
	require.NotNil(t, info)

	stored := fx.integrations.stored("int-1")
	assert.Equal(t, domain.IntegrationStatusActive, stored.Status)
	assert.Equal(t, domain.HealthCheckHealthy, stored.HealthCheckStatus)

	changes := fx.dispatcher.ofType(events.EventIntegrationStatusChanged)
	require.Len(t, changes, 1)
	payload := changes[0].Payload.(events.IntegrationStatusChangedPayload)
	assert.Equal(t, domain.IntegrationStatusPending, payload.OldStatus)
	assert.Equal(t, domain.IntegrationStatusActive, payload.NewStatus)

	assert.Len(t, fx.dispatcher.ofType(events.EventHealthCheckCompleted), 1)
}

func TestTestConnectionClosesOpenCircuit(t *testing.T) {
	tripped := &domain.Integration{
		ID:                  "int-1",
		Name:                "primary desk",
		Platform:            "memory",
		Status:              domain.IntegrationStatusError,
		Enabled:             true,
		ConsecutiveFailures: 7,
	}
	fx := newIntegrationFixture(t, tripped)
	fx.svc.newPlatform = fixedPlatform(&fakePlatform{}, nil)

	_, err := fx.svc.TestConnection(context.Background(), "int-1")
	require.NoError(t, err)

	stored := fx.integrations.stored("int-1")
	assert.Equal(t, domain.IntegrationStatusActive, stored.Status)
	assert.Equal(t, 0, stored.ConsecutiveFailures, "closing the circuit clears the failure run")
	assert.Len(t, fx.dispatcher.ofType(events.EventIntegrationStatusChanged), 1)
}

func TestTestConnectionFailureRecordsUnhealthy(t *testing.T) {
	active := &domain.Integration{
		ID:       "int-1",
		Name:     "primary desk",
		Platform: "memory",
		Status:   domain.IntegrationStatusActive,
		Enabled:  true,
	}
	fx := newIntegrationFixture(t, active)
	fx.svc.newPlatform = fixedPlatform(&fakePlatform{healthErr: errors.New("connection refused")}, nil)

	_, err := fx.svc.TestConnection(context.Background(), "int-1")
	require.Error(t, err)

	stored := fx.integrations.stored("int-1")
	assert.Equal(t, domain.HealthCheckUnhealthy, stored.HealthCheckStatus)
	assert.Equal(t, 1, stored.ConsecutiveFailures, "probe failures share the live failure budget")
	assert.Equal(t, domain.IntegrationStatusActive, stored.Status)

	completed := fx.dispatcher.ofType(events.EventHealthCheckCompleted)
	require.Len(t, completed, 1)
	payload := completed[0].Payload.(events.HealthCheckCompletedPayload)
	assert.False(t, payload.Healthy)
}

func TestLifecycleTransitions(t *testing.T) {
	pending := &domain.Integration{
		ID:       "int-1",
		Name:     "primary desk",
		Platform: "memory",
		Status:   domain.IntegrationStatusPending,
		Enabled:  true,
	}
	fx := newIntegrationFixture(t, pending)
	ctx := context.Background()

	require.NoError(t, fx.svc.Activate(ctx, "int-1"))
	assert.Equal(t, domain.IntegrationStatusActive, fx.integrations.stored("int-1").Status)

	require.NoError(t, fx.svc.Suspend(ctx, "int-1"))
	assert.Equal(t, domain.IntegrationStatusSuspended, fx.integrations.stored("int-1").Status)

	require.NoError(t, fx.svc.Deactivate(ctx, "int-1"))
	assert.Equal(t, domain.IntegrationStatusInactive, fx.integrations.stored("int-1").Status)

	// Re-applying the current status publishes nothing.
	before := len(fx.dispatcher.ofType(events.EventIntegrationStatusChanged))
	require.NoError(t, fx.svc.Deactivate(ctx, "int-1"))
	assert.Len(t, fx.dispatcher.ofType(events.EventIntegrationStatusChanged), before)

	require.NoError(t, fx.svc.SetEnabled(ctx, "int-1", false))
	assert.False(t, fx.integrations.stored("int-1").Enabled)
}

func TestListSyncAttemptsRequiresExistingIntegration(t *testing.T) {
	fx := newIntegrationFixture(t)
	_, err := fx.svc.ListSyncAttempts(context.Background(), "int-missing", 10, 0)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, "NOT_FOUND"))
}
