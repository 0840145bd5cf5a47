package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/platform"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

// fakeDB hands out fakeTx transactions and remembers them for assertions.
type fakeDB struct {
	beginErr error
	txs      []*fakeTx
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeDB) lastTx() *fakeTx {
	if len(f.txs) == 0 {
		return nil
	}
	return f.txs[len(f.txs)-1]
}

// fakeTx tracks commit/rollback; the repository fakes ignore the tx handle,
// so the remaining pgx.Tx methods are inert.
type fakeTx struct {
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                               { return nil }

// fakeIntegrationRepo keeps integrations in memory. Reads return copies so
// callers see snapshots, the way rows behave; writes mutate the stored value
// through the same domain transitions the SQL statements encode.
type fakeIntegrationRepo struct {
	mu    sync.Mutex
	items map[string]*domain.Integration

	listCandidatesErr error
	recordRequestErr  error

	recordRequestCalls     int
	recordHealthCheckCalls int
}

func newFakeIntegrationRepo(items ...*domain.Integration) *fakeIntegrationRepo {
	repo := &fakeIntegrationRepo{items: map[string]*domain.Integration{}}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (f *fakeIntegrationRepo) Create(ctx context.Context, integration *domain.Integration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if integration.ID == "" {
		integration.ID = fmt.Sprintf("int-%d", len(f.items)+1)
	}
	integration.CreatedAt = time.Now()
	integration.UpdatedAt = integration.CreatedAt
	stored := *integration
	f.items[integration.ID] = &stored
	return nil
}

func (f *fakeIntegrationRepo) UpdateConfig(ctx context.Context, integration *domain.Integration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[integration.ID]; !ok {
		return pgx.ErrNoRows
	}
	stored := *integration
	f.items[integration.ID] = &stored
	return nil
}

func (f *fakeIntegrationRepo) GetByID(ctx context.Context, id string) (*domain.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	snapshot := *stored
	return &snapshot, nil
}

func (f *fakeIntegrationRepo) List(ctx context.Context, filter repository.IntegrationFilter) ([]domain.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Integration
	for _, stored := range f.items {
		if filter.EnabledOnly && !stored.Enabled {
			continue
		}
		result = append(result, *stored)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].CreatedAt.Before(result[b].CreatedAt) })
	return result, nil
}

func (f *fakeIntegrationRepo) ListCandidates(ctx context.Context) ([]domain.Integration, error) {
	if f.listCandidatesErr != nil {
		return nil, f.listCandidatesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Integration
	for _, stored := range f.items {
		if !stored.Enabled || stored.Status != domain.IntegrationStatusActive {
			continue
		}
		result = append(result, *stored)
	}
	sort.Slice(result, func(a, b int) bool { return result[a].CreatedAt.Before(result[b].CreatedAt) })
	return result, nil
}

func (f *fakeIntegrationRepo) RecordRequest(ctx context.Context, id string, now time.Time, success bool, errMsg string) error {
	if f.recordRequestErr != nil {
		return f.recordRequestErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	f.recordRequestCalls++
	stored.ApplyRequest(now, success, errMsg)
	return nil
}

func (f *fakeIntegrationRepo) RecordHealthCheck(ctx context.Context, id string, now time.Time, ok bool, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, found := f.items[id]
	if !found {
		return pgx.ErrNoRows
	}
	f.recordHealthCheckCalls++
	stored.ApplyHealthCheck(now, ok, errMsg)
	return nil
}

func (f *fakeIntegrationRepo) SetStatus(ctx context.Context, id string, status domain.IntegrationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Status = status
	if status == domain.IntegrationStatusActive {
		stored.ConsecutiveFailures = 0
	}
	return nil
}

func (f *fakeIntegrationRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[id]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Enabled = enabled
	return nil
}

func (f *fakeIntegrationRepo) stored(id string) *domain.Integration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id]
}

// fakeTicketRepo records staged rows and external links.
type fakeTicketRepo struct {
	createErr error
	linkErr   error

	created []*domain.Ticket
	links   map[string][2]string
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{links: map[string][2]string{}}
}

func (f *fakeTicketRepo) CreateTx(ctx context.Context, tx pgx.Tx, ticket *domain.Ticket) error {
	if f.createErr != nil {
		return f.createErr
	}
	ticket.ID = fmt.Sprintf("tck-%d", len(f.created)+1)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	f.created = append(f.created, ticket)
	return nil
}

func (f *fakeTicketRepo) SetExternalLinkTx(ctx context.Context, tx pgx.Tx, ticketID, externalID, externalURL string) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links[ticketID] = [2]string{externalID, externalURL}
	return nil
}

func (f *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	for _, ticket := range f.created {
		if ticket.ID == id {
			return ticket, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTicketRepo) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	for _, ticket := range f.created {
		if ticket.ExternalKey == key {
			return ticket, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, ticket := range f.created {
		if filter.RequesterID != nil && ticket.RequesterID != *filter.RequesterID {
			continue
		}
		result = append(result, *ticket)
	}
	return result, nil
}

// fakeSyncLogRepo captures audit rows.
type fakeSyncLogRepo struct {
	createErr error
	attempts  []domain.SyncAttempt
}

func (f *fakeSyncLogRepo) Create(ctx context.Context, attempt *domain.SyncAttempt) error {
	if f.createErr != nil {
		return f.createErr
	}
	attempt.ID = fmt.Sprintf("att-%d", len(f.attempts)+1)
	attempt.CreatedAt = time.Now()
	f.attempts = append(f.attempts, *attempt)
	return nil
}

func (f *fakeSyncLogRepo) ListByIntegration(ctx context.Context, integrationID string, limit, offset int) ([]domain.SyncAttempt, error) {
	var result []domain.SyncAttempt
	for _, attempt := range f.attempts {
		if attempt.IntegrationID == integrationID {
			result = append(result, attempt)
		}
	}
	return result, nil
}

// capturingDispatcher records published events.
type capturingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *capturingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *capturingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []events.Event
	for _, event := range d.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

// fakePlatform is a scriptable adapter.
type fakePlatform struct {
	createResult *platform.CreateResult
	createErr    error
	healthInfo   *platform.HealthInfo
	healthErr    error

	createCalls int
	lastTicket  *domain.Ticket
}

func (p *fakePlatform) Create(ctx context.Context, ticket *domain.Ticket) (*platform.CreateResult, error) {
	p.createCalls++
	p.lastTicket = ticket
	if p.createErr != nil {
		return nil, p.createErr
	}
	if p.createResult != nil {
		return p.createResult, nil
	}
	return &platform.CreateResult{ExternalID: "EXT-1", ExternalURL: "https://ext.example/EXT-1"}, nil
}

func (p *fakePlatform) TestConnection(ctx context.Context) (*platform.HealthInfo, error) {
	if p.healthErr != nil {
		return nil, p.healthErr
	}
	if p.healthInfo != nil {
		return p.healthInfo, nil
	}
	return &platform.HealthInfo{Detail: "ok"}, nil
}

func fixedPlatform(p platform.Platform, err error) func(string, platform.Config) (platform.Platform, error) {
	return func(name string, cfg platform.Config) (platform.Platform, error) {
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
