package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/events"
)

// NotificationService gives operators visibility into sync failures and
// circuit state changes. Events are logged and, when an ops webhook is
// configured, forwarded to it as JSON.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.OpsConfig
	client     *http.Client
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.OpsConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventExternalSyncFailed, n.handleSyncFailed)
	n.dispatcher.Subscribe(events.EventIntegrationStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventHealthCheckCompleted, n.handleHealthCheck)
}

func (n *NotificationService) handleSyncFailed(ctx context.Context, event events.Event) error {
	n.logger.Warn("external sync failed", zap.Any("payload", event.Payload))
	n.forwardToOpsWebhook(ctx, event)
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("integration status changed", zap.Any("payload", event.Payload))
	n.forwardToOpsWebhook(ctx, event)
	return nil
}

func (n *NotificationService) handleHealthCheck(ctx context.Context, event events.Event) error {
	n.logger.Debug("health check completed", zap.Any("payload", event.Payload))
	return nil
}

// forwardToOpsWebhook is fire-and-forget: a broken ops endpoint must never
// affect ticket processing.
func (n *NotificationService) forwardToOpsWebhook(ctx context.Context, event events.Event) {
	url := strings.TrimSpace(n.cfg.WebhookURL)
	if url == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("marshal ops notification", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("build ops notification request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("deliver ops notification", zap.Error(err))
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.logger.Warn("ops webhook refused notification",
			zap.Int("status", resp.StatusCode),
			zap.String("event_type", string(event.Type)))
	}
}
