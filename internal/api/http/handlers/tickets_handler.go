package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/service"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// TicketsHandler exposes ticket creation and retrieval.
type TicketsHandler struct {
	sync    *service.SyncService
	tickets repository.TicketRepository
}

// NewTicketsHandler returns a new handler instance.
func NewTicketsHandler(sync *service.SyncService, tickets repository.TicketRepository) *TicketsHandler {
	return &TicketsHandler{sync: sync, tickets: tickets}
}

// Create handles POST /tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.Title == "" {
		return apperrors.NewValidationError("title is required", nil)
	}

	ticket, result, err := h.sync.CreateTicket(c.UserContext(), service.TicketCreateInput{
		RequesterID:   principal.SubjectID,
		Title:         req.Title,
		Description:   req.Description,
		Priority:      req.Priority,
		Category:      req.Category,
		Department:    req.Department,
		Tags:          req.Tags,
		IntegrationID: req.IntegrationID,
		RequireSync:   req.RequireSync,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(dto.CreateTicketResponse{
		Ticket:            dto.ToTicketResponse(ticket),
		IntegrationResult: dto.ToIntegrationResultResponse(result),
	})
}

// Get handles GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.ToTicketResponse(ticket))
}

// List handles GET /tickets for the authenticated requester.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	filter := repository.TicketFilter{
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	}
	if principal.Role != auth.RoleAdmin {
		requester := principal.SubjectID
		filter.RequesterID = &requester
	}
	tickets, err := h.tickets.ListWithFilter(c.UserContext(), filter)
	if err != nil {
		return apperrors.MapError(err)
	}
	out := make([]dto.TicketResponse, 0, len(tickets))
	for idx := range tickets {
		out = append(out, dto.ToTicketResponse(&tickets[idx]))
	}
	return c.JSON(fiber.Map{"tickets": out})
}
