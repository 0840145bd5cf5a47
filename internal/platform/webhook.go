package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// WebhookPlatformName selects the generic webhook adapter in the registry.
const WebhookPlatformName = "webhook"

// webhookCredentials is the expected credential blob shape for the adapter.
type webhookCredentials struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token,omitempty"`
}

// webhookTicket is the outbound payload posted on create.
type webhookTicket struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Department  string   `json:"department"`
	Tags        []string `json:"tags,omitempty"`
}

// webhookCreateResponse is the expected response body.
type webhookCreateResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// webhookPlatform posts tickets as JSON to a configured endpoint. It is the
// one bundled adapter: platform-agnostic, useful for relays and for wiring
// any system that accepts an inbound webhook.
type webhookPlatform struct {
	endpoint string
	token    string
	client   *http.Client
}

func init() {
	_ = Register(WebhookPlatformName, NewWebhook)
}

// NewWebhook builds the adapter from a webhookCredentials blob.
func NewWebhook(cfg Config) (Platform, error) {
	var creds webhookCredentials
	if err := json.Unmarshal(cfg.Credentials, &creds); err != nil {
		return nil, fmt.Errorf("parse webhook credentials: %w", err)
	}
	if !strings.HasPrefix(creds.Endpoint, "http://") && !strings.HasPrefix(creds.Endpoint, "https://") {
		return nil, fmt.Errorf("webhook endpoint must be an http(s) URL")
	}
	return &webhookPlatform{
		endpoint: strings.TrimRight(creds.Endpoint, "/"),
		token:    creds.Token,
		// Per-call deadlines come from the caller's context; the client
		// timeout is only a hard upper bound.
		client: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Create posts the ticket and returns the external record reference.
// Network failures and timeouts surface as EXTERNAL_UNREACHABLE; any non-2xx
// response is an EXTERNAL_REJECTED with the response body verbatim.
func (w *webhookPlatform) Create(ctx context.Context, ticket *domain.Ticket) (*CreateResult, error) {
	payload := webhookTicket{
		Key:         ticket.ExternalKey,
		Title:       ticket.Title,
		Description: ticket.Description,
		Category:    ticket.Category,
		Priority:    string(ticket.Priority),
		Department:  ticket.Department,
		Tags:        ticket.Tags,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint+"/tickets", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalUnreachable(err, map[string]any{"endpoint": w.endpoint})
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(respBody))
		if message == "" {
			message = resp.Status
		}
		return nil, apperrors.NewExternalRejected(message, map[string]any{"status": resp.StatusCode})
	}

	var created webhookCreateResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, apperrors.NewExternalRejected("malformed create response", map[string]any{"body": string(respBody)})
	}
	if created.ID == "" {
		return nil, apperrors.NewExternalRejected("create response missing id", nil)
	}
	return &CreateResult{ExternalID: created.ID, ExternalURL: created.URL}, nil
}

// TestConnection issues a GET against the endpoint. Any HTTP response counts
// as reachable; only transport failures are unhealthy.
func (w *webhookPlatform) TestConnection(ctx context.Context) (*HealthInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint, nil)
	if err != nil {
		return nil, err
	}
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, apperrors.NewExternalUnreachable(err, map[string]any{"endpoint": w.endpoint})
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	return &HealthInfo{
		Latency: time.Since(start),
		Detail:  resp.Status,
	}, nil
}
