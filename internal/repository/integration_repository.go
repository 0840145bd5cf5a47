package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

const integrationColumns = `id, name, category, platform, status, enabled, auth_type, credentials,
               last_health_check_at, health_check_status, health_check_error,
               total_requests, successful_requests, failed_requests, consecutive_failures,
               last_success_at, last_error, last_error_at,
               rate_limit_per_hour, current_hour_requests, rate_limit_reset_at,
               default_priority, supports_categories, supports_priorities, department_mapping, routing_rules,
               maintenance_window_start, maintenance_window_end,
               auto_disable_on_error, failure_threshold, request_timeout_seconds, expires_at,
               created_at, updated_at`

// IntegrationFilter captures listing parameters.
type IntegrationFilter struct {
	Category    *string
	Platform    *string
	EnabledOnly bool
	Statuses    []domain.IntegrationStatus
	Limit       int
	Offset      int
}

// IntegrationRepository encapsulates integration persistence. The counter
// mutations (RecordRequest, RecordHealthCheck) are expressed as single
// atomic UPDATE statements: routing runs without a global lock, so a
// read-modify-write here would lose concurrent increments.
type IntegrationRepository interface {
	Create(ctx context.Context, integration *domain.Integration) error
	UpdateConfig(ctx context.Context, integration *domain.Integration) error
	GetByID(ctx context.Context, id string) (*domain.Integration, error)
	List(ctx context.Context, filter IntegrationFilter) ([]domain.Integration, error)
	ListCandidates(ctx context.Context) ([]domain.Integration, error)
	RecordRequest(ctx context.Context, id string, now time.Time, success bool, errMsg string) error
	RecordHealthCheck(ctx context.Context, id string, now time.Time, ok bool, errMsg string) error
	SetStatus(ctx context.Context, id string, status domain.IntegrationStatus) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type integrationRepository struct {
	pool *pgxpool.Pool
}

// NewIntegrationRepository instantiates repository.
func NewIntegrationRepository(pool *pgxpool.Pool) IntegrationRepository {
	return &integrationRepository{pool: pool}
}

func (r *integrationRepository) Create(ctx context.Context, integration *domain.Integration) error {
	const query = `
        INSERT INTO integrations (name, category, platform, status, enabled, auth_type, credentials,
            health_check_status, rate_limit_per_hour, rate_limit_reset_at,
            default_priority, supports_categories, supports_priorities, department_mapping, routing_rules,
            maintenance_window_start, maintenance_window_end,
            auto_disable_on_error, failure_threshold, request_timeout_seconds, expires_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		integration.Name,
		integration.Category,
		integration.Platform,
		integration.Status,
		integration.Enabled,
		integration.AuthType,
		integration.Credentials,
		integration.HealthCheckStatus,
		integration.RateLimitPerHour,
		integration.RateLimitResetAt,
		integration.DefaultPriority,
		integration.SupportsCategories,
		integration.SupportsPriorities,
		integration.DepartmentMapping,
		integration.RoutingRules,
		integration.MaintenanceWindowStart,
		integration.MaintenanceWindowEnd,
		integration.AutoDisableOnError,
		integration.FailureThreshold,
		integration.RequestTimeoutSeconds,
		integration.ExpiresAt,
	).Scan(&integration.ID, &integration.CreatedAt, &integration.UpdatedAt)
}

// UpdateConfig persists operator-editable configuration. Health and counter
// fields are deliberately excluded; those change only through the atomic
// RecordRequest / RecordHealthCheck paths.
func (r *integrationRepository) UpdateConfig(ctx context.Context, integration *domain.Integration) error {
	const query = `
        UPDATE integrations SET name=$1, category=$2, auth_type=$3, credentials=$4,
            rate_limit_per_hour=$5, default_priority=$6,
            supports_categories=$7, supports_priorities=$8, department_mapping=$9, routing_rules=$10,
            maintenance_window_start=$11, maintenance_window_end=$12,
            auto_disable_on_error=$13, failure_threshold=$14, request_timeout_seconds=$15, expires_at=$16,
            updated_at=NOW()
        WHERE id=$17`
	cmd, err := r.pool.Exec(ctx, query,
		integration.Name,
		integration.Category,
		integration.AuthType,
		integration.Credentials,
		integration.RateLimitPerHour,
		integration.DefaultPriority,
		integration.SupportsCategories,
		integration.SupportsPriorities,
		integration.DepartmentMapping,
		integration.RoutingRules,
		integration.MaintenanceWindowStart,
		integration.MaintenanceWindowEnd,
		integration.AutoDisableOnError,
		integration.FailureThreshold,
		integration.RequestTimeoutSeconds,
		integration.ExpiresAt,
		integration.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *integrationRepository) GetByID(ctx context.Context, id string) (*domain.Integration, error) {
	query := fmt.Sprintf(`SELECT %s FROM integrations WHERE id=$1`, integrationColumns)
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	integration, err := scanIntegration(rows)
	if err != nil {
		return nil, err
	}
	return integration, nil
}

func (r *integrationRepository) List(ctx context.Context, filter IntegrationFilter) ([]domain.Integration, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Platform != nil {
		args = append(args, *filter.Platform)
		clauses = append(clauses, fmt.Sprintf("platform=$%d", len(args)))
	}
	if filter.EnabledOnly {
		clauses = append(clauses, "enabled=TRUE")
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM integrations WHERE %s ORDER BY created_at ASC LIMIT %d OFFSET %d`,
		integrationColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIntegrations(rows)
}

// ListCandidates returns enabled ACTIVE integrations ordered by created_at,
// the deterministic tie-break order for routing. Time-dependent predicates
// (maintenance window, quota, expiry) are applied in memory by the selector.
func (r *integrationRepository) ListCandidates(ctx context.Context) ([]domain.Integration, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM integrations WHERE enabled=TRUE AND status=$1 ORDER BY created_at ASC`,
		integrationColumns)
	rows, err := r.pool.Query(ctx, query, domain.IntegrationStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIntegrations(rows)
}

// RecordRequest applies one request outcome in a single UPDATE. All CASE
// expressions evaluate against the row's pre-update values, so the hour
// window roll, the counter bumps and the threshold trip happen atomically.
func (r *integrationRepository) RecordRequest(ctx context.Context, id string, now time.Time, success bool, errMsg string) error {
	const query = `
        UPDATE integrations SET
            total_requests = total_requests + 1,
            current_hour_requests = CASE WHEN $2::timestamptz >= rate_limit_reset_at THEN 1 ELSE current_hour_requests + 1 END,
            rate_limit_reset_at = CASE WHEN $2::timestamptz >= rate_limit_reset_at
                THEN date_trunc('hour', $2::timestamptz) + interval '1 hour'
                ELSE rate_limit_reset_at END,
            successful_requests = successful_requests + CASE WHEN $3 THEN 1 ELSE 0 END,
            failed_requests = failed_requests + CASE WHEN $3 THEN 0 ELSE 1 END,
            consecutive_failures = CASE WHEN $3 THEN 0 ELSE consecutive_failures + 1 END,
            last_success_at = CASE WHEN $3 THEN $2::timestamptz ELSE last_success_at END,
            last_error = CASE WHEN $3 THEN last_error ELSE NULLIF($4, '') END,
            last_error_at = CASE WHEN $3 THEN last_error_at ELSE $2::timestamptz END,
            status = CASE WHEN NOT $3 AND auto_disable_on_error AND failure_threshold > 0
                    AND consecutive_failures + 1 >= failure_threshold
                THEN 'ERROR' ELSE status END,
            updated_at = NOW()
        WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, now.UTC(), success, errMsg)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordHealthCheck applies one probe outcome. Probe failures draw from the
// same consecutive-failure budget as live traffic; a healthy probe closes an
// open circuit and clears the failure run.
func (r *integrationRepository) RecordHealthCheck(ctx context.Context, id string, now time.Time, ok bool, errMsg string) error {
	const query = `
        UPDATE integrations SET
            last_health_check_at = $2::timestamptz,
            health_check_status = CASE WHEN $3 THEN 'HEALTHY' ELSE 'UNHEALTHY' END,
            health_check_error = CASE WHEN $3 THEN NULL ELSE NULLIF($4, '') END,
            consecutive_failures = CASE
                WHEN $3 AND status = 'ERROR' THEN 0
                WHEN $3 THEN consecutive_failures
                ELSE consecutive_failures + 1 END,
            status = CASE
                WHEN $3 AND status = 'ERROR' THEN 'ACTIVE'
                WHEN NOT $3 AND auto_disable_on_error AND failure_threshold > 0
                    AND consecutive_failures + 1 >= failure_threshold THEN 'ERROR'
                ELSE status END,
            updated_at = NOW()
        WHERE id = $1`
	cmd, err := r.pool.Exec(ctx, query, id, now.UTC(), ok, errMsg)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *integrationRepository) SetStatus(ctx context.Context, id string, status domain.IntegrationStatus) error {
	const query = `
        UPDATE integrations SET status=$1,
            consecutive_failures = CASE WHEN $1 = 'ACTIVE' THEN 0 ELSE consecutive_failures END,
            updated_at=NOW()
        WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *integrationRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	const query = `UPDATE integrations SET enabled=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, enabled, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanIntegrations(rows pgx.Rows) ([]domain.Integration, error) {
	var result []domain.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *integration)
	}
	return result, rows.Err()
}

func scanIntegration(rows pgx.Rows) (*domain.Integration, error) {
	var integration domain.Integration
	if err := rows.Scan(
		&integration.ID,
		&integration.Name,
		&integration.Category,
		&integration.Platform,
		&integration.Status,
		&integration.Enabled,
		&integration.AuthType,
		&integration.Credentials,
		&integration.LastHealthCheckAt,
		&integration.HealthCheckStatus,
		&integration.HealthCheckError,
		&integration.TotalRequests,
		&integration.SuccessfulRequests,
		&integration.FailedRequests,
		&integration.ConsecutiveFailures,
		&integration.LastSuccessAt,
		&integration.LastError,
		&integration.LastErrorAt,
		&integration.RateLimitPerHour,
		&integration.CurrentHourRequests,
		&integration.RateLimitResetAt,
		&integration.DefaultPriority,
		&integration.SupportsCategories,
		&integration.SupportsPriorities,
		&integration.DepartmentMapping,
		&integration.RoutingRules,
		&integration.MaintenanceWindowStart,
		&integration.MaintenanceWindowEnd,
		&integration.AutoDisableOnError,
		&integration.FailureThreshold,
		&integration.RequestTimeoutSeconds,
		&integration.ExpiresAt,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &integration, nil
}
