package handlers

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/service"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// IntegrationsHandler exposes integration configuration and lifecycle.
type IntegrationsHandler struct {
	integrations *service.IntegrationService
	validate     *validator.Validate
}

// NewIntegrationsHandler returns a new handler instance.
func NewIntegrationsHandler(integrations *service.IntegrationService) *IntegrationsHandler {
	return &IntegrationsHandler{
		integrations: integrations,
		validate:     validator.New(),
	}
}

// Create handles POST /integrations.
func (h *IntegrationsHandler) Create(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}
	integration, err := h.integrations.CreateIntegration(c.UserContext(), toInput(req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ToIntegrationResponse(integration, time.Now()))
}

// Update handles PUT /integrations/:id.
func (h *IntegrationsHandler) Update(c *fiber.Ctx) error {
	req, err := h.parseRequest(c)
	if err != nil {
		return err
	}
	integration, err := h.integrations.UpdateIntegration(c.UserContext(), c.Params("id"), toInput(req))
	if err != nil {
		return err
	}
	return c.JSON(dto.ToIntegrationResponse(integration, time.Now()))
}

// Get handles GET /integrations/:id.
func (h *IntegrationsHandler) Get(c *fiber.Ctx) error {
	integration, err := h.integrations.GetIntegration(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.ToIntegrationResponse(integration, time.Now()))
}

// List handles GET /integrations.
func (h *IntegrationsHandler) List(c *fiber.Ctx) error {
	filter := repository.IntegrationFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if category := c.Query("category"); category != "" {
		filter.Category = &category
	}
	if platformName := c.Query("platform"); platformName != "" {
		filter.Platform = &platformName
	}
	list, err := h.integrations.ListIntegrations(c.UserContext(), filter)
	if err != nil {
		return err
	}
	now := time.Now()
	out := make([]dto.IntegrationResponse, 0, len(list))
	for idx := range list {
		out = append(out, dto.ToIntegrationResponse(&list[idx], now))
	}
	return c.JSON(fiber.Map{"integrations": out})
}

// Test handles POST /integrations/:id/test.
func (h *IntegrationsHandler) Test(c *fiber.Ctx) error {
	info, err := h.integrations.TestConnection(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.ConnectionTestResponse{
		Healthy:   true,
		LatencyMs: info.Latency.Milliseconds(),
		Detail:    info.Detail,
	})
}

// Activate handles POST /integrations/:id/activate.
func (h *IntegrationsHandler) Activate(c *fiber.Ctx) error {
	if err := h.integrations.Activate(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Suspend handles POST /integrations/:id/suspend.
func (h *IntegrationsHandler) Suspend(c *fiber.Ctx) error {
	if err := h.integrations.Suspend(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Deactivate handles POST /integrations/:id/deactivate.
func (h *IntegrationsHandler) Deactivate(c *fiber.Ctx) error {
	if err := h.integrations.Deactivate(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Enable handles POST /integrations/:id/enable.
func (h *IntegrationsHandler) Enable(c *fiber.Ctx) error {
	if err := h.integrations.SetEnabled(c.UserContext(), c.Params("id"), true); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Disable handles POST /integrations/:id/disable.
func (h *IntegrationsHandler) Disable(c *fiber.Ctx) error {
	if err := h.integrations.SetEnabled(c.UserContext(), c.Params("id"), false); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SyncAttempts handles GET /integrations/:id/sync-attempts.
func (h *IntegrationsHandler) SyncAttempts(c *fiber.Ctx) error {
	attempts, err := h.integrations.ListSyncAttempts(c.UserContext(), c.Params("id"),
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	out := make([]dto.SyncAttemptResponse, 0, len(attempts))
	for idx := range attempts {
		out = append(out, dto.ToSyncAttemptResponse(&attempts[idx]))
	}
	return c.JSON(fiber.Map{"sync_attempts": out})
}

func (h *IntegrationsHandler) parseRequest(c *fiber.Ctx) (*dto.IntegrationRequest, error) {
	var req dto.IntegrationRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, apperrors.NewValidationError("invalid request body", nil)
	}
	if err := h.validate.Struct(&req); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	return &req, nil
}

func toInput(req *dto.IntegrationRequest) service.IntegrationInput {
	return service.IntegrationInput{
		Name:                   req.Name,
		Category:               req.Category,
		Platform:               req.Platform,
		AuthType:               req.AuthType,
		Credentials:            req.Credentials,
		RateLimitPerHour:       req.RateLimitPerHour,
		DefaultPriority:        req.DefaultPriority,
		SupportsCategories:     req.SupportsCategories,
		SupportsPriorities:     req.SupportsPriorities,
		DepartmentMapping:      req.DepartmentMapping,
		RoutingRules:           req.RoutingRules,
		MaintenanceWindowStart: req.MaintenanceWindowStart,
		MaintenanceWindowEnd:   req.MaintenanceWindowEnd,
		AutoDisableOnError:     req.AutoDisableOnError,
		FailureThreshold:       req.FailureThreshold,
		RequestTimeoutSeconds:  req.RequestTimeoutSeconds,
		ExpiresAt:              req.ExpiresAt,
	}
}
