package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// RoutingService chooses the integration a new ticket should sync to.
type RoutingService struct {
	integrations repository.IntegrationRepository
	now          func() time.Time
}

// NewRoutingService constructs the service.
func NewRoutingService(integrations repository.IntegrationRepository) *RoutingService {
	return &RoutingService{
		integrations: integrations,
		now:          time.Now,
	}
}

// RouteRequest is the selector input. IntegrationID, when set, names an
// explicitly requested integration; RequireSync demands an external sync and
// turns "no usable match" into an error instead of an internal-only ticket.
type RouteRequest struct {
	Attributes    domain.TicketAttributes
	IntegrationID *string
	RequireSync   bool
}

// Select returns the integration to sync to, or nil when the ticket should
// be created internal-only. An explicitly requested integration bypasses
// capability filtering and scoring but must still be usable right now.
func (s *RoutingService) Select(ctx context.Context, req RouteRequest) (*domain.Integration, error) {
	now := s.now()

	if req.IntegrationID != nil {
		integration, err := s.integrations.GetByID(ctx, *req.IntegrationID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewIntegrationUnavailable("requested integration not found",
					map[string]any{"integration_id": *req.IntegrationID})
			}
			return nil, apperrors.MapError(err)
		}
		if !integration.IsUsable(now) {
			return nil, apperrors.NewIntegrationUnavailable("requested integration is not usable",
				map[string]any{
					"integration_id": integration.ID,
					"status":         integration.EffectiveStatus(now),
				})
		}
		return integration, nil
	}

	candidates, err := s.integrations.ListCandidates(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	best := pickBest(candidates, req.Attributes, now)
	if best == nil {
		if req.RequireSync {
			return nil, apperrors.NewIntegrationUnavailable("no usable integration matches the ticket", nil)
		}
		return nil, nil
	}
	return best, nil
}

// pickBest applies the usability and capability filters, scores survivors
// and returns the lowest score. Candidates arrive ordered by created_at, so
// a strict comparison implements the earliest-created tie-break and keeps
// selection deterministic.
func pickBest(candidates []domain.Integration, attrs domain.TicketAttributes, now time.Time) *domain.Integration {
	var best *domain.Integration
	bestScore := 0
	for idx := range candidates {
		candidate := &candidates[idx]
		if !candidate.IsUsable(now) {
			continue
		}
		if !candidate.SupportsTicket(attrs) {
			continue
		}
		score := candidate.RouteScore(attrs)
		if best == nil || score < bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best
}
