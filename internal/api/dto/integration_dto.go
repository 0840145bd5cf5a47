package dto

import (
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// IntegrationRequest payload for create and update. Credentials are
// write-only; they are sealed at rest and never echoed back.
type IntegrationRequest struct {
	Name                   string               `json:"name" validate:"required,max=255"`
	Category               string               `json:"category" validate:"max=100"`
	Platform               string               `json:"platform" validate:"required"`
	AuthType               string               `json:"auth_type" validate:"required"`
	Credentials            map[string]string    `json:"credentials"`
	RateLimitPerHour       int                  `json:"rate_limit_per_hour" validate:"gte=0"`
	DefaultPriority        int                  `json:"default_priority"`
	SupportsCategories     []string             `json:"supports_categories"`
	SupportsPriorities     []string             `json:"supports_priorities"`
	DepartmentMapping      map[string]string    `json:"department_mapping"`
	RoutingRules           []domain.RoutingRule `json:"routing_rules"`
	MaintenanceWindowStart string               `json:"maintenance_window_start"`
	MaintenanceWindowEnd   string               `json:"maintenance_window_end"`
	AutoDisableOnError     bool                 `json:"auto_disable_on_error"`
	FailureThreshold       int                  `json:"failure_threshold" validate:"gte=0"`
	RequestTimeoutSeconds  int                  `json:"request_timeout_seconds" validate:"gte=0,lte=300"`
	ExpiresAt              *time.Time           `json:"expires_at"`
}

// IntegrationResponse is the read representation.
type IntegrationResponse struct {
	ID                     string                   `json:"id"`
	Name                   string                   `json:"name"`
	Category               string                   `json:"category"`
	Platform               string                   `json:"platform"`
	Status                 domain.IntegrationStatus `json:"status"`
	Enabled                bool                     `json:"enabled"`
	AuthType               string                   `json:"auth_type"`
	LastHealthCheckAt      *time.Time               `json:"last_health_check_at"`
	HealthCheckStatus      domain.HealthCheckStatus `json:"health_check_status"`
	HealthCheckError       *string                  `json:"health_check_error"`
	TotalRequests          int64                    `json:"total_requests"`
	SuccessfulRequests     int64                    `json:"successful_requests"`
	FailedRequests         int64                    `json:"failed_requests"`
	ConsecutiveFailures    int                      `json:"consecutive_failures"`
	RateLimitPerHour       int                      `json:"rate_limit_per_hour"`
	CurrentHourRequests    int                      `json:"current_hour_requests"`
	RateLimitResetAt       time.Time                `json:"rate_limit_reset_at"`
	DefaultPriority        int                      `json:"default_priority"`
	SupportsCategories     []string                 `json:"supports_categories"`
	SupportsPriorities     []string                 `json:"supports_priorities"`
	DepartmentMapping      map[string]string        `json:"department_mapping"`
	RoutingRules           []domain.RoutingRule     `json:"routing_rules"`
	MaintenanceWindowStart string                   `json:"maintenance_window_start"`
	MaintenanceWindowEnd   string                   `json:"maintenance_window_end"`
	AutoDisableOnError     bool                     `json:"auto_disable_on_error"`
	FailureThreshold       int                      `json:"failure_threshold"`
	RequestTimeoutSeconds  int                      `json:"request_timeout_seconds"`
	ExpiresAt              *time.Time               `json:"expires_at"`
	CreatedAt              time.Time                `json:"created_at"`
	UpdatedAt              time.Time                `json:"updated_at"`
}

// SyncAttemptResponse is one audit row.
type SyncAttemptResponse struct {
	ID            string             `json:"id"`
	IntegrationID string             `json:"integration_id"`
	TicketKey     string             `json:"ticket_key"`
	Outcome       domain.SyncOutcome `json:"outcome"`
	ErrorCode     *string            `json:"error_code,omitempty"`
	ErrorMessage  *string            `json:"error_message,omitempty"`
	DurationMs    int64              `json:"duration_ms"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ConnectionTestResponse reports a probe result.
type ConnectionTestResponse struct {
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
	Detail    string `json:"detail,omitempty"`
}

// ToIntegrationResponse maps a domain integration, reporting the effective
// status (EXPIRED overrides the stored value once the expiry passes).
func ToIntegrationResponse(i *domain.Integration, now time.Time) IntegrationResponse {
	return IntegrationResponse{
		ID:                     i.ID,
		Name:                   i.Name,
		Category:               i.Category,
		Platform:               i.Platform,
		Status:                 i.EffectiveStatus(now),
		Enabled:                i.Enabled,
		AuthType:               i.AuthType,
		LastHealthCheckAt:      i.LastHealthCheckAt,
		HealthCheckStatus:      i.HealthCheckStatus,
		HealthCheckError:       i.HealthCheckError,
		TotalRequests:          i.TotalRequests,
		SuccessfulRequests:     i.SuccessfulRequests,
		FailedRequests:         i.FailedRequests,
		ConsecutiveFailures:    i.ConsecutiveFailures,
		RateLimitPerHour:       i.RateLimitPerHour,
		CurrentHourRequests:    i.CurrentHourRequests,
		RateLimitResetAt:       i.RateLimitResetAt,
		DefaultPriority:        i.DefaultPriority,
		SupportsCategories:     i.SupportsCategories,
		SupportsPriorities:     i.SupportsPriorities,
		DepartmentMapping:      i.DepartmentMapping,
		RoutingRules:           i.RoutingRules,
		MaintenanceWindowStart: i.MaintenanceWindowStart,
		MaintenanceWindowEnd:   i.MaintenanceWindowEnd,
		AutoDisableOnError:     i.AutoDisableOnError,
		FailureThreshold:       i.FailureThreshold,
		RequestTimeoutSeconds:  i.RequestTimeoutSeconds,
		ExpiresAt:              i.ExpiresAt,
		CreatedAt:              i.CreatedAt,
		UpdatedAt:              i.UpdatedAt,
	}
}

// ToSyncAttemptResponse maps one audit row.
func ToSyncAttemptResponse(a *domain.SyncAttempt) SyncAttemptResponse {
	return SyncAttemptResponse{
		ID:            a.ID,
		IntegrationID: a.IntegrationID,
		TicketKey:     a.TicketKey,
		Outcome:       a.Outcome,
		ErrorCode:     a.ErrorCode,
		ErrorMessage:  a.ErrorMessage,
		DurationMs:    a.DurationMs,
		CreatedAt:     a.CreatedAt,
	}
}
