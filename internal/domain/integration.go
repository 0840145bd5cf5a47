package domain

import (
	"fmt"
	"time"
)

// IntegrationStatus enumerates integration lifecycle states. EXPIRED is
// computed from ExpiresAt at read time and never stored.
type IntegrationStatus string

const (
	IntegrationStatusPending   IntegrationStatus = "PENDING"
	IntegrationStatusActive    IntegrationStatus = "ACTIVE"
	IntegrationStatusInactive  IntegrationStatus = "INACTIVE"
	IntegrationStatusError     IntegrationStatus = "ERROR"
	IntegrationStatusSuspended IntegrationStatus = "SUSPENDED"
	IntegrationStatusExpired   IntegrationStatus = "EXPIRED"
)

// HealthCheckStatus captures the result of the latest connectivity probe.
type HealthCheckStatus string

const (
	HealthCheckUnknown   HealthCheckStatus = "UNKNOWN"
	HealthCheckHealthy   HealthCheckStatus = "HEALTHY"
	HealthCheckUnhealthy HealthCheckStatus = "UNHEALTHY"
)

// Integration is a configured connection to a third-party ticketing or
// communication platform, together with its health, circuit-breaker and
// rate-limit state.
type Integration struct {
	ID       string
	Name     string
	Category string
	Platform string

	Status   IntegrationStatus
	Enabled  bool
	AuthType string
	// Credentials is the sealed credential blob; its contents are opaque to
	// everything except the platform adapter that consumes it.
	Credentials []byte

	LastHealthCheckAt *time.Time
	HealthCheckStatus HealthCheckStatus
	HealthCheckError  *string

	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	ConsecutiveFailures int
	LastSuccessAt       *time.Time
	LastError           *string
	LastErrorAt         *time.Time

	RateLimitPerHour    int
	CurrentHourRequests int
	RateLimitResetAt    time.Time

	DefaultPriority    int
	SupportsCategories []string
	SupportsPriorities []string
	DepartmentMapping  map[string]string
	RoutingRules       []RoutingRule

	// Maintenance window bounds as "HH:MM" in UTC; empty means no window.
	MaintenanceWindowStart string
	MaintenanceWindowEnd   string

	AutoDisableOnError    bool
	FailureThreshold      int
	RequestTimeoutSeconds int
	ExpiresAt             *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the integration's credential lease has lapsed.
func (i *Integration) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// EffectiveStatus returns the stored status, overridden by EXPIRED when the
// expiry has passed.
func (i *Integration) EffectiveStatus(now time.Time) IntegrationStatus {
	if i.IsExpired(now) {
		return IntegrationStatusExpired
	}
	return i.Status
}

// InMaintenanceWindow reports whether now falls inside the configured
// blackout window. Bounds are compared as same-day HH:MM strings in UTC; a
// window whose start sorts after its end (e.g. 22:00-02:00) never matches.
func (i *Integration) InMaintenanceWindow(now time.Time) bool {
	if i.MaintenanceWindowStart == "" || i.MaintenanceWindowEnd == "" {
		return false
	}
	clock := now.UTC().Format("15:04")
	return clock >= i.MaintenanceWindowStart && clock <= i.MaintenanceWindowEnd
}

// RateLimitExhausted reports whether the hourly quota is spent for the
// current window. A zero RateLimitPerHour means unlimited. The window is
// half-open: at the reset instant itself the quota is already fresh.
func (i *Integration) RateLimitExhausted(now time.Time) bool {
	if i.RateLimitPerHour <= 0 {
		return false
	}
	if !now.Before(i.RateLimitResetAt) {
		return false
	}
	return i.CurrentHourRequests >= i.RateLimitPerHour
}

// IsUsable reports whether the integration may receive a new outbound
// request right now. Disabled, non-ACTIVE, expired, in-maintenance and
// quota-exhausted integrations are all unroutable regardless of any other
// field.
func (i *Integration) IsUsable(now time.Time) bool {
	if !i.Enabled {
		return false
	}
	if i.Status != IntegrationStatusActive {
		return false
	}
	if i.IsExpired(now) {
		return false
	}
	if i.InMaintenanceWindow(now) {
		return false
	}
	if i.RateLimitExhausted(now) {
		return false
	}
	return true
}

// rollRateWindow resets the fixed hourly window once now has reached the
// boundary recorded in RateLimitResetAt.
func (i *Integration) rollRateWindow(now time.Time) {
	if !now.Before(i.RateLimitResetAt) {
		i.CurrentHourRequests = 0
		i.RateLimitResetAt = now.UTC().Truncate(time.Hour).Add(time.Hour)
	}
}

// ApplyRequest records the outcome of one outbound request against the
// integration's counters. Both successes and failures consume hourly quota;
// the budget models request volume, not correctness. Crossing the failure
// threshold with AutoDisableOnError set trips the circuit to ERROR.
func (i *Integration) ApplyRequest(now time.Time, success bool, errMsg string) {
	i.rollRateWindow(now)
	i.TotalRequests++
	i.CurrentHourRequests++

	if success {
		i.SuccessfulRequests++
		i.ConsecutiveFailures = 0
		ts := now
		i.LastSuccessAt = &ts
		return
	}

	i.FailedRequests++
	i.ConsecutiveFailures++
	if errMsg != "" {
		msg := errMsg
		i.LastError = &msg
	}
	ts := now
	i.LastErrorAt = &ts
	if i.AutoDisableOnError && i.FailureThreshold > 0 && i.ConsecutiveFailures >= i.FailureThreshold {
		i.Status = IntegrationStatusError
	}
}

// ApplyHealthCheck records a connectivity probe result. A healthy probe
// closes an open circuit (ERROR back to ACTIVE); an unhealthy probe draws
// from the same consecutive-failure budget as live traffic.
func (i *Integration) ApplyHealthCheck(now time.Time, ok bool, errMsg string) {
	ts := now
	i.LastHealthCheckAt = &ts
	if ok {
		i.HealthCheckStatus = HealthCheckHealthy
		i.HealthCheckError = nil
		if i.Status == IntegrationStatusError {
			// Closing the circuit clears the failure run, otherwise the very
			// next failure would re-trip it.
			i.Status = IntegrationStatusActive
			i.ConsecutiveFailures = 0
		}
		return
	}
	i.HealthCheckStatus = HealthCheckUnhealthy
	if errMsg != "" {
		msg := errMsg
		i.HealthCheckError = &msg
	}
	i.ConsecutiveFailures++
	if i.AutoDisableOnError && i.FailureThreshold > 0 && i.ConsecutiveFailures >= i.FailureThreshold {
		i.Status = IntegrationStatusError
	}
}

// Activate performs the PENDING/ERROR to ACTIVE transition after a
// successful connection test or an explicit manual activation.
func (i *Integration) Activate() {
	i.Status = IntegrationStatusActive
	i.ConsecutiveFailures = 0
}

// RequestTimeout returns the per-integration outbound call timeout.
func (i *Integration) RequestTimeout() time.Duration {
	if i.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(i.RequestTimeoutSeconds) * time.Second
}

// ValidMaintenanceWindow checks both bounds parse as HH:MM.
func (i *Integration) ValidMaintenanceWindow() error {
	for _, bound := range []string{i.MaintenanceWindowStart, i.MaintenanceWindowEnd} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse("15:04", bound); err != nil {
			return fmt.Errorf("invalid maintenance window bound %q: %w", bound, err)
		}
	}
	return nil
}
