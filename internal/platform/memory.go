package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// MemoryPlatformName selects the in-memory adapter, used in development and
// demo environments.
const MemoryPlatformName = "memory"

// memoryPlatform keeps created records in a map. No external I/O.
type memoryPlatform struct {
	mu      sync.Mutex
	nextID  int
	records map[string]*domain.Ticket
}

func init() {
	_ = Register(MemoryPlatformName, func(cfg Config) (Platform, error) {
		return &memoryPlatform{records: map[string]*domain.Ticket{}}, nil
	})
}

func (m *memoryPlatform) Create(ctx context.Context, ticket *domain.Ticket) (*CreateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := fmt.Sprintf("MEM-%04d", m.nextID)
	copied := *ticket
	m.records[id] = &copied
	return &CreateResult{
		ExternalID:  id,
		ExternalURL: "memory://tickets/" + id,
	}, nil
}

func (m *memoryPlatform) TestConnection(ctx context.Context) (*HealthInfo, error) {
	return &HealthInfo{Latency: time.Microsecond, Detail: "in-memory"}, nil
}
