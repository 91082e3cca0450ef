package fundrequest

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/erp/fundflow/internal/domain/fundrequest"
	"github.com/erp/fundflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

var (
	tenantID    = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	requesterID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func requester() fundrequest.Actor {
	return fundrequest.NewActor(requesterID, "Alice Mbuyi", "requester")
}

func accountant() fundrequest.Actor {
	return fundrequest.NewActor(uuid.New(), "Jean Kabila", "accountant")
}

func director() fundrequest.Actor {
	return fundrequest.NewActor(uuid.New(), "Grace Lukusa", "director")
}

func cashier() fundrequest.Actor {
	return fundrequest.NewActor(uuid.New(), "Paul Tshisekedi", "cashier")
}

func admin() fundrequest.Actor {
	return fundrequest.NewActor(uuid.New(), "Admin", "admin")
}

// ==================== In-memory stores ====================

// memoryRequests stores fund requests and their ledger, honouring the
// conditional update contract of FundRequestRepository.
type memoryRequests struct {
	mu       sync.Mutex
	requests map[uuid.UUID]fundrequest.FundRequest
	history  map[uuid.UUID][]fundrequest.HistoryEntry
	events   []shared.DomainEvent
}

func newMemoryRequests() *memoryRequests {
	return &memoryRequests{
		requests: make(map[uuid.UUID]fundrequest.FundRequest),
		history:  make(map[uuid.UUID][]fundrequest.HistoryEntry),
	}
}

func (m *memoryRequests) FindByID(_ context.Context, tenant, id uuid.UUID) (*fundrequest.FundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.TenantID != tenant {
		return nil, shared.ErrNotFound
	}
	return &r, nil
}

func (m *memoryRequests) FindAll(_ context.Context, tenant uuid.UUID, filter fundrequest.ListFilter) ([]fundrequest.FundRequest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fundrequest.FundRequest
	for _, r := range m.requests {
		if r.TenantID != tenant {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b fundrequest.FundRequest) int {
		return int(b.RequestNumber - a.RequestNumber)
	})
	return out, int64(len(out)), nil
}

func (m *memoryRequests) Create(_ context.Context, req *fundrequest.FundRequest, entry *fundrequest.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.TenantID == req.TenantID && r.RequestNumber == req.RequestNumber {
			return shared.ErrAlreadyExists
		}
	}
	m.store(req, entry)
	return nil
}

func (m *memoryRequests) UpdateIfStatus(_ context.Context, req *fundrequest.FundRequest, expectedStatus fundrequest.Status, expectedVersion int, entry *fundrequest.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[req.ID]
	if !ok || stored.Status != expectedStatus || stored.Version != expectedVersion {
		return shared.ErrConcurrencyConflict
	}
	m.store(req, entry)
	return nil
}

func (m *memoryRequests) store(req *fundrequest.FundRequest, entry *fundrequest.HistoryEntry) {
	m.events = append(m.events, req.GetDomainEvents()...)
	req.ClearDomainEvents()
	m.requests[req.ID] = *req
	if entry != nil {
		m.appendLocked(entry)
	}
}

func (m *memoryRequests) appendLocked(entry *fundrequest.HistoryEntry) {
	entries := m.history[entry.FundRequestID]
	entry.Sequence = int64(len(entries) + 1)
	m.history[entry.FundRequestID] = append(entries, *entry)
}

func (m *memoryRequests) Append(_ context.Context, entry *fundrequest.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(entry)
	return nil
}

func (m *memoryRequests) FindByRequest(_ context.Context, _ uuid.UUID, requestID uuid.UUID) ([]fundrequest.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.history[requestID]), nil
}

func (m *memoryRequests) CountByRequest(_ context.Context, _ uuid.UUID, requestID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.history[requestID])), nil
}

// memorySteps is an in-memory WorkflowStepRepository
type memorySteps struct {
	mu    sync.Mutex
	steps map[uuid.UUID]fundrequest.WorkflowStep
	finds int
}

func newMemorySteps() *memorySteps {
	return &memorySteps{steps: make(map[uuid.UUID]fundrequest.WorkflowStep)}
}

func (m *memorySteps) FindByTenant(_ context.Context, tenant uuid.UUID) ([]fundrequest.WorkflowStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	var out []fundrequest.WorkflowStep
	for _, s := range m.steps {
		if s.TenantID == tenant {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b fundrequest.WorkflowStep) int { return a.StepOrder - b.StepOrder })
	return out, nil
}

func (m *memorySteps) FindByID(_ context.Context, tenant, id uuid.UUID) (*fundrequest.WorkflowStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.steps[id]
	if !ok || s.TenantID != tenant {
		return nil, shared.ErrNotFound
	}
	return &s, nil
}

func (m *memorySteps) InsertIfAbsent(_ context.Context, steps []fundrequest.WorkflowStep) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, s := range steps {
		if m.hasOrderLocked(s.TenantID, s.StepOrder, uuid.Nil) {
			continue
		}
		m.steps[s.ID] = s
		inserted++
	}
	return inserted, nil
}

func (m *memorySteps) Update(_ context.Context, step *fundrequest.WorkflowStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[step.ID]; !ok {
		return shared.ErrNotFound
	}
	if m.hasOrderLocked(step.TenantID, step.StepOrder, step.ID) {
		return shared.NewValidationError("Another step already uses this step order")
	}
	m.steps[step.ID] = *step
	return nil
}

func (m *memorySteps) hasOrderLocked(tenant uuid.UUID, order int, except uuid.UUID) bool {
	for id, s := range m.steps {
		if id != except && s.TenantID == tenant && s.StepOrder == order {
			return true
		}
	}
	return false
}

// memoryNumbers issues increasing request numbers per tenant
type memoryNumbers struct {
	mu   sync.Mutex
	last map[uuid.UUID]int64
}

func newMemoryNumbers() *memoryNumbers {
	return &memoryNumbers{last: make(map[uuid.UUID]int64)}
}

func (m *memoryNumbers) Next(_ context.Context, tenant uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[tenant]++
	return m.last[tenant], nil
}

// memoryProofStorage records uploaded and deleted objects
type memoryProofStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	uploadErr error
}

func newMemoryProofStorage() *memoryProofStorage {
	return &memoryProofStorage{objects: make(map[string][]byte)}
}

func (m *memoryProofStorage) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryProofStorage) DownloadURL(_ context.Context, key string) (string, time.Time, error) {
	return "https://proofs.example.test/" + key, time.Now().Add(15 * time.Minute), nil
}

func (m *memoryProofStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// workflowFixture wires the services over in-memory stores
type workflowFixture struct {
	requests *memoryRequests
	steps    *memorySteps
	numbers  *memoryNumbers
	proofs   *memoryProofStorage
	stepSvc  *StepService
	service  *FundRequestService
}

func newWorkflowFixture() *workflowFixture {
	f := &workflowFixture{
		requests: newMemoryRequests(),
		steps:    newMemorySteps(),
		numbers:  newMemoryNumbers(),
		proofs:   newMemoryProofStorage(),
	}
	f.stepSvc = NewStepService(f.steps)
	f.service = NewFundRequestService(f.requests, f.requests, f.stepSvc, f.numbers)
	f.service.SetProofStorage(f.proofs)
	return f
}

// ==================== testify mocks ====================

// MockFundRequestRepository is a mock implementation of FundRequestRepository
type MockFundRequestRepository struct {
	mock.Mock
}

func (m *MockFundRequestRepository) FindByID(ctx context.Context, tenant, id uuid.UUID) (*fundrequest.FundRequest, error) {
	args := m.Called(ctx, tenant, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fundrequest.FundRequest), args.Error(1)
}

func (m *MockFundRequestRepository) FindAll(ctx context.Context, tenant uuid.UUID, filter fundrequest.ListFilter) ([]fundrequest.FundRequest, int64, error) {
	args := m.Called(ctx, tenant, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]fundrequest.FundRequest), args.Get(1).(int64), args.Error(2)
}

func (m *MockFundRequestRepository) Create(ctx context.Context, req *fundrequest.FundRequest, entry *fundrequest.HistoryEntry) error {
	args := m.Called(ctx, req, entry)
	return args.Error(0)
}

func (m *MockFundRequestRepository) UpdateIfStatus(ctx context.Context, req *fundrequest.FundRequest, expectedStatus fundrequest.Status, expectedVersion int, entry *fundrequest.HistoryEntry) error {
	args := m.Called(ctx, req, expectedStatus, expectedVersion, entry)
	return args.Error(0)
}

// MockRequestNumberGenerator is a mock implementation of RequestNumberGenerator
type MockRequestNumberGenerator struct {
	mock.Mock
}

func (m *MockRequestNumberGenerator) Next(ctx context.Context, tenant uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenant)
	return args.Get(0).(int64), args.Error(1)
}
