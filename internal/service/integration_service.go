package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/platform"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/secrets"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// requiredCredentialFields maps an auth type to the credential keys it must
// carry. Validated once at configuration time so credential problems never
// resurface during ticket creation.
var requiredCredentialFields = map[string][]string{
	"none":    {},
	"token":   {"token"},
	"api_key": {"api_key"},
	"basic":   {"username", "password"},
	"oauth2":  {"client_id", "client_secret"},
	"webhook": {"endpoint"},
}

// IntegrationService manages integration configuration and lifecycle.
type IntegrationService struct {
	integrations repository.IntegrationRepository
	syncLog      repository.SyncLogRepository
	box          *secrets.Box
	dispatcher   events.Dispatcher
	logger       *zap.Logger

	defaults     config.SyncConfig
	probeTimeout time.Duration
	newPlatform  func(name string, cfg platform.Config) (platform.Platform, error)
}

// IntegrationDependencies bundles collaborators.
type IntegrationDependencies struct {
	IntegrationRepo repository.IntegrationRepository
	SyncLogRepo     repository.SyncLogRepository
	CredentialBox   *secrets.Box
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Defaults        config.SyncConfig
	ProbeTimeout    time.Duration
}

// NewIntegrationService constructs the service.
func NewIntegrationService(deps IntegrationDependencies) *IntegrationService {
	timeout := deps.ProbeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IntegrationService{
		integrations: deps.IntegrationRepo,
		syncLog:      deps.SyncLogRepo,
		box:          deps.CredentialBox,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		defaults:     deps.Defaults,
		probeTimeout: timeout,
		newPlatform:  platform.New,
	}
}

// IntegrationInput describes configuration for create and update.
type IntegrationInput struct {
	Name                   string
	Category               string
	Platform               string
	AuthType               string
	Credentials            map[string]string
	RateLimitPerHour       int
	DefaultPriority        int
	SupportsCategories     []string
	SupportsPriorities     []string
	DepartmentMapping      map[string]string
	RoutingRules           []domain.RoutingRule
	MaintenanceWindowStart string
	MaintenanceWindowEnd   string
	AutoDisableOnError     bool
	FailureThreshold       int
	RequestTimeoutSeconds  int
	ExpiresAt              *time.Time
}

// CreateIntegration validates and stores a new integration in PENDING
// state. It becomes ACTIVE only after a successful connection test or an
// explicit manual activation. Omitted tuning knobs take the deployment
// defaults; UpdateIntegration replaces values verbatim, so an explicit zero
// (unlimited quota, no trip threshold) remains reachable there.
func (s *IntegrationService) CreateIntegration(ctx context.Context, input IntegrationInput) (*domain.Integration, error) {
	if err := s.validateInput(&input); err != nil {
		return nil, err
	}
	s.applyDefaults(&input)
	sealed, err := s.sealCredentials(input.Credentials)
	if err != nil {
		return nil, err
	}

	integration := &domain.Integration{
		Name:                   strings.TrimSpace(input.Name),
		Category:               input.Category,
		Platform:               input.Platform,
		Status:                 domain.IntegrationStatusPending,
		Enabled:                true,
		AuthType:               input.AuthType,
		Credentials:            sealed,
		HealthCheckStatus:      domain.HealthCheckUnknown,
		RateLimitPerHour:       input.RateLimitPerHour,
		RateLimitResetAt:       time.Now().UTC().Truncate(time.Hour).Add(time.Hour),
		DefaultPriority:        input.DefaultPriority,
		SupportsCategories:     input.SupportsCategories,
		SupportsPriorities:     input.SupportsPriorities,
		DepartmentMapping:      input.DepartmentMapping,
		RoutingRules:           input.RoutingRules,
		MaintenanceWindowStart: input.MaintenanceWindowStart,
		MaintenanceWindowEnd:   input.MaintenanceWindowEnd,
		AutoDisableOnError:     input.AutoDisableOnError,
		FailureThreshold:       input.FailureThreshold,
		RequestTimeoutSeconds:  input.RequestTimeoutSeconds,
		ExpiresAt:              input.ExpiresAt,
	}
	if err := integration.ValidMaintenanceWindow(); err != nil {
		return nil, apperrors.NewConfigurationInvalid(err.Error(), nil)
	}
	if err := s.integrations.Create(ctx, integration); err != nil {
		return nil, apperrors.MapError(err)
	}
	return integration, nil
}

// UpdateIntegration replaces operator-editable configuration. Platform is
// immutable after creation; counters and health state are untouched.
func (s *IntegrationService) UpdateIntegration(ctx context.Context, id string, input IntegrationInput) (*domain.Integration, error) {
	integration, err := s.GetIntegration(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Platform != "" && input.Platform != integration.Platform {
		return nil, apperrors.NewConfigurationInvalid("platform cannot be changed", nil)
	}
	input.Platform = integration.Platform
	if err := s.validateInput(&input); err != nil {
		return nil, err
	}

	integration.Name = strings.TrimSpace(input.Name)
	integration.Category = input.Category
	integration.AuthType = input.AuthType
	integration.RateLimitPerHour = input.RateLimitPerHour
	integration.DefaultPriority = input.DefaultPriority
	integration.SupportsCategories = input.SupportsCategories
	integration.SupportsPriorities = input.SupportsPriorities
	integration.DepartmentMapping = input.DepartmentMapping
	integration.RoutingRules = input.RoutingRules
	integration.MaintenanceWindowStart = input.MaintenanceWindowStart
	integration.MaintenanceWindowEnd = input.MaintenanceWindowEnd
	integration.AutoDisableOnError = input.AutoDisableOnError
	integration.FailureThreshold = input.FailureThreshold
	integration.RequestTimeoutSeconds = input.RequestTimeoutSeconds
	integration.ExpiresAt = input.ExpiresAt
	if err := integration.ValidMaintenanceWindow(); err != nil {
		return nil, apperrors.NewConfigurationInvalid(err.Error(), nil)
	}

	if len(input.Credentials) > 0 {
		sealed, err := s.sealCredentials(input.Credentials)
		if err != nil {
			return nil, err
		}
		integration.Credentials = sealed
	}

	if err := s.integrations.UpdateConfig(ctx, integration); err != nil {
		return nil, apperrors.MapError(err)
	}
	return integration, nil
}

// GetIntegration loads one integration.
func (s *IntegrationService) GetIntegration(ctx context.Context, id string) (*domain.Integration, error) {
	integration, err := s.integrations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("integration", map[string]any{"integration_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return integration, nil
}

// ListIntegrations lists integrations by filter.
func (s *IntegrationService) ListIntegrations(ctx context.Context, filter repository.IntegrationFilter) ([]domain.Integration, error) {
	list, err := s.integrations.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// ListSyncAttempts returns the audit trail for one integration.
func (s *IntegrationService) ListSyncAttempts(ctx context.Context, integrationID string, limit, offset int) ([]domain.SyncAttempt, error) {
	if _, err := s.GetIntegration(ctx, integrationID); err != nil {
		return nil, err
	}
	attempts, err := s.syncLog.ListByIntegration(ctx, integrationID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return attempts, nil
}

// TestConnection probes the platform and records the result through the same
// failure budget live traffic uses. A healthy probe activates a PENDING
// integration and closes an open circuit.
func (s *IntegrationService) TestConnection(ctx context.Context, id string) (*platform.HealthInfo, error) {
	integration, err := s.GetIntegration(ctx, id)
	if err != nil {
		return nil, err
	}

	info, probeErr := s.probe(ctx, integration)

	now := time.Now()
	errMsg := ""
	if probeErr != nil {
		errMsg = probeErr.Error()
	}
	if err := s.integrations.RecordHealthCheck(ctx, integration.ID, now, probeErr == nil, errMsg); err != nil {
		return nil, apperrors.MapError(err)
	}

	if probeErr == nil && integration.Status == domain.IntegrationStatusPending {
		if err := s.integrations.SetStatus(ctx, integration.ID, domain.IntegrationStatusActive); err != nil {
			return nil, apperrors.MapError(err)
		}
		s.publishStatusChanged(ctx, integration.ID, integration.Status, domain.IntegrationStatusActive, "connection test succeeded")
	}
	if probeErr == nil && integration.Status == domain.IntegrationStatusError {
		// RecordHealthCheck already flipped the row back to ACTIVE.
		s.publishStatusChanged(ctx, integration.ID, integration.Status, domain.IntegrationStatusActive, "health probe recovered")
	}

	s.publishEvent(ctx, events.Event{
		Type: events.EventHealthCheckCompleted,
		Payload: events.HealthCheckCompletedPayload{
			IntegrationID: integration.ID,
			Healthy:       probeErr == nil,
			Detail:        healthDetail(info),
			Error:         optionalString(errMsg),
		},
	})

	if probeErr != nil {
		return nil, apperrors.MapError(probeErr)
	}
	return info, nil
}

// Activate manually transitions an integration to ACTIVE.
func (s *IntegrationService) Activate(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.IntegrationStatusActive, "manual activation")
}

// Suspend manually transitions an integration to SUSPENDED.
func (s *IntegrationService) Suspend(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.IntegrationStatusSuspended, "manual suspension")
}

// Deactivate manually transitions an integration to INACTIVE.
func (s *IntegrationService) Deactivate(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.IntegrationStatusInactive, "manual deactivation")
}

// SetEnabled flips the routing kill switch.
func (s *IntegrationService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if _, err := s.GetIntegration(ctx, id); err != nil {
		return err
	}
	if err := s.integrations.SetEnabled(ctx, id, enabled); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *IntegrationService) transition(ctx context.Context, id string, status domain.IntegrationStatus, reason string) error {
	integration, err := s.GetIntegration(ctx, id)
	if err != nil {
		return err
	}
	if integration.Status == status {
		return nil
	}
	if err := s.integrations.SetStatus(ctx, id, status); err != nil {
		return apperrors.MapError(err)
	}
	s.publishStatusChanged(ctx, id, integration.Status, status, reason)
	return nil
}

func (s *IntegrationService) probe(ctx context.Context, integration *domain.Integration) (*platform.HealthInfo, error) {
	creds, err := s.box.Open(integration.Credentials)
	if err != nil {
		return nil, err
	}
	adapter, err := s.newPlatform(integration.Platform, platform.Config{
		IntegrationID: integration.ID,
		Name:          integration.Name,
		Credentials:   creds,
	})
	if err != nil {
		return nil, err
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	return adapter.TestConnection(probeCtx)
}

func (s *IntegrationService) applyDefaults(input *IntegrationInput) {
	if input.RateLimitPerHour == 0 {
		input.RateLimitPerHour = s.defaults.DefaultRateLimitHour
	}
	if input.FailureThreshold == 0 {
		input.FailureThreshold = s.defaults.DefaultFailureLimit
	}
	if input.RequestTimeoutSeconds == 0 {
		input.RequestTimeoutSeconds = s.defaults.DefaultTimeoutSeconds
	}
}

// validateInput enforces the configuration contract: a registered platform,
// a known auth type, and every credential field that auth type requires.
func (s *IntegrationService) validateInput(input *IntegrationInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidationError("name is required", nil)
	}
	if !platform.Known(input.Platform) {
		return apperrors.NewConfigurationInvalid("unknown platform",
			map[string]any{"platform": input.Platform, "known": platform.Names()})
	}
	required, ok := requiredCredentialFields[input.AuthType]
	if !ok {
		return apperrors.NewConfigurationInvalid("unknown auth type",
			map[string]any{"auth_type": input.AuthType})
	}
	missing := []string{}
	for _, field := range required {
		if strings.TrimSpace(input.Credentials[field]) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewConfigurationInvalid("missing credential fields",
			map[string]any{"auth_type": input.AuthType, "missing": missing})
	}
	return nil
}

func (s *IntegrationService) sealCredentials(creds map[string]string) ([]byte, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	sealed, err := s.box.Seal(raw)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return sealed, nil
}

func (s *IntegrationService) publishStatusChanged(ctx context.Context, id string, oldStatus, newStatus domain.IntegrationStatus, reason string) {
	s.publishEvent(ctx, events.Event{
		Type: events.EventIntegrationStatusChanged,
		Payload: events.IntegrationStatusChangedPayload{
			IntegrationID: id,
			OldStatus:     oldStatus,
			NewStatus:     newStatus,
			Reason:        reason,
		},
	})
}

func (s *IntegrationService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func healthDetail(info *platform.HealthInfo) string {
	if info == nil {
		return ""
	}
	return info.Detail
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
