// Package platform defines the capability surface a third-party ticketing
// platform must implement, and a name-keyed registry of adapter factories.
// Each adapter is opaque to the rest of the service: create a ticket, test
// connectivity, nothing else.
package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// CreateResult is the external record reference returned by a successful
// create call.
type CreateResult struct {
	ExternalID  string
	ExternalURL string
}

// HealthInfo describes a connectivity probe result.
type HealthInfo struct {
	Latency time.Duration
	Detail  string
}

// Platform is the capability consumed per third-party system. Errors from
// Create must be one of the errorutil sync codes so the orchestrator can
// classify them.
type Platform interface {
	Create(ctx context.Context, ticket *domain.Ticket) (*CreateResult, error)
	TestConnection(ctx context.Context) (*HealthInfo, error)
}

// Config is handed to a factory when instantiating an adapter. Credentials
// is the unsealed credential blob for the integration.
type Config struct {
	IntegrationID string
	Name          string
	Credentials   []byte
}

// Factory builds a Platform from integration configuration.
type Factory func(cfg Config) (Platform, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a factory available under the given platform name. Adapters
// call this from init.
func Register(name string, factory Factory) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("platform %q already registered", name)
	}
	registry[name] = factory
	return nil
}

// New instantiates the adapter registered under name.
func New(name string, cfg Config) (Platform, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", name)
	}
	return factory(cfg)
}

// Known reports whether a platform name has a registered factory.
func Known(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Names lists registered platform names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
