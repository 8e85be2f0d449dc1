package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/music-store/support-service/internal/domain"
	"github.com/music-store/support-service/internal/events"
	"github.com/music-store/support-service/internal/repository"
)

// In-memory repository fakes shared by the service tests.

type memoryTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]domain.Ticket
	// accounts and messages feed the summary projection.
	accounts *memoryAccountRepo
	messages *memoryMessageRepo
}

func newMemoryTicketRepo(accounts *memoryAccountRepo, messages *memoryMessageRepo) *memoryTicketRepo {
	return &memoryTicketRepo{tickets: make(map[string]domain.Ticket), accounts: accounts, messages: messages}
}

func (m *memoryTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", m.seq)
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	m.tickets[ticket.ID] = *ticket
	return nil
}

func (m *memoryTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	m.tickets[ticket.ID] = *ticket
	return nil
}

func (m *memoryTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (m *memoryTicketRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range m.tickets {
		if ticket.CustomerID == customerID {
			out = append(out, ticket)
		}
	}
	return out, nil
}

func (m *memoryTicketRepo) ListSummaries(ctx context.Context, filter repository.TicketFilter) ([]domain.TicketSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TicketSummary
	for _, ticket := range m.tickets {
		if !m.matches(ticket, filter) {
			continue
		}
		out = append(out, m.summarize(ticket))
	}
	return out, nil
}

func (m *memoryTicketRepo) Stats(ctx context.Context) (repository.TicketStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats repository.TicketStats
	for _, ticket := range m.tickets {
		stats.Total++
		switch ticket.Status {
		case domain.TicketStatusUrgent:
			stats.Urgent++
		case domain.TicketStatusClosed:
			stats.Closed++
		}
		if !ticket.Assigned() {
			stats.Unassigned++
		}
	}
	return stats, nil
}

func (m *memoryTicketRepo) matches(ticket domain.Ticket, filter repository.TicketFilter) bool {
	if filter.CustomerID != nil && ticket.CustomerID != *filter.CustomerID {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if ticket.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Unassigned != nil && *filter.Unassigned && ticket.Assigned() {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(*filter.SearchTerm)
		if !strings.Contains(strings.ToLower(ticket.Subject), term) && !m.threadContains(ticket.ID, term) {
			return false
		}
	}
	return true
}

func (m *memoryTicketRepo) threadContains(ticketID, term string) bool {
	if m.messages == nil {
		return false
	}
	m.messages.mu.Lock()
	defer m.messages.mu.Unlock()
	for _, msg := range m.messages.byTicket[ticketID] {
		if strings.Contains(strings.ToLower(msg.Content), term) {
			return true
		}
	}
	return false
}

func (m *memoryTicketRepo) summarize(ticket domain.Ticket) domain.TicketSummary {
	summary := domain.TicketSummary{Ticket: ticket}
	if m.accounts != nil {
		if customer, ok := m.accounts.lookup(ticket.CustomerID); ok {
			summary.CustomerName = customer.Username
		}
		if ticket.AssignedStaffID != nil {
			if staff, ok := m.accounts.lookup(*ticket.AssignedStaffID); ok {
				name := staff.Username
				summary.AssignedStaffName = &name
			}
		}
	}
	if m.messages != nil {
		m.messages.mu.Lock()
		thread := m.messages.byTicket[ticket.ID]
		summary.MessageCount = len(thread)
		if len(thread) > 0 {
			last := thread[len(thread)-1]
			snippet := last.Content
			summary.LastMessageSnippet = &snippet
			at := last.CreatedAt
			summary.LastMessageAt = &at
		}
		m.messages.mu.Unlock()
	}
	return summary
}

type memoryMessageRepo struct {
	mu       sync.Mutex
	seq      int
	byID     map[string]domain.TicketMessage
	byTicket map[string][]domain.TicketMessage
}

func newMemoryMessageRepo() *memoryMessageRepo {
	return &memoryMessageRepo{byID: make(map[string]domain.TicketMessage), byTicket: make(map[string][]domain.TicketMessage)}
}

func (m *memoryMessageRepo) Create(ctx context.Context, msg *domain.TicketMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	msg.ID = fmt.Sprintf("message-%d", m.seq)
	msg.CreatedAt = time.Now()
	m.byID[msg.ID] = *msg
	m.byTicket[msg.TicketID] = append(m.byTicket[msg.TicketID], *msg)
	return nil
}

func (m *memoryMessageRepo) GetByID(ctx context.Context, id string) (*domain.TicketMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &msg, nil
}

func (m *memoryMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TicketMessage(nil), m.byTicket[ticketID]...), nil
}

type memoryHistoryRepo struct {
	mu      sync.Mutex
	seq     int
	entries map[string][]domain.TicketHistory
}

func newMemoryHistoryRepo() *memoryHistoryRepo {
	return &memoryHistoryRepo{entries: make(map[string][]domain.TicketHistory)}
}

func (m *memoryHistoryRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	history.ID = fmt.Sprintf("history-%d", m.seq)
	history.CreatedAt = time.Now()
	m.entries[history.TicketID] = append(m.entries[history.TicketID], *history)
	return nil
}

func (m *memoryHistoryRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TicketHistory(nil), m.entries[ticketID]...), nil
}

type memoryAccountRepo struct {
	mu       sync.Mutex
	seq      int
	accounts map[string]domain.Account
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{accounts: make(map[string]domain.Account)}
}

func (m *memoryAccountRepo) add(username string, role domain.UserRole) domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	account := domain.Account{
		ID:       fmt.Sprintf("account-%d", m.seq),
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	}
	m.accounts[account.ID] = account
	return account
}

func (m *memoryAccountRepo) lookup(id string) (domain.Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	return account, ok
}

func (m *memoryAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	account.ID = fmt.Sprintf("account-%d", m.seq)
	account.CreatedAt = time.Now()
	m.accounts[account.ID] = *account
	return nil
}

func (m *memoryAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &account, nil
}

func (m *memoryAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Email == email {
			match := account
			return &match, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Username == username {
			match := account
			return &match, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{keys: make(map[string]string)}
}

func (m *memoryIdempotencyStore) Reserve(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[key]; ok {
		return existing, false, nil
	}
	m.keys[key] = value
	return "", true, nil
}

func (m *memoryIdempotencyStore) Complete(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

func (m *memoryIdempotencyStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// fixture bundles the fakes behind fully wired services.
type fixture struct {
	accounts    *memoryAccountRepo
	tickets     *memoryTicketRepo
	messages    *memoryMessageRepo
	history     *memoryHistoryRepo
	idempotency *memoryIdempotencyStore

	ticketService     *TicketService
	assignmentService *AssignmentService
	triageService     *TriageService

	customer domain.Identity
	staff    domain.Identity
	admin    domain.Identity
}

func newFixture() *fixture {
	accounts := newMemoryAccountRepo()
	messages := newMemoryMessageRepo()
	tickets := newMemoryTicketRepo(accounts, messages)
	history := newMemoryHistoryRepo()
	idempotency := newMemoryIdempotencyStore()
	dispatcher := events.NewInMemoryDispatcher()

	f := &fixture{
		accounts:    accounts,
		tickets:     tickets,
		messages:    messages,
		history:     history,
		idempotency: idempotency,
	}
	f.ticketService = NewTicketService(TicketDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		HistoryRepo: history,
		Dispatcher:  dispatcher,
		Idempotency: idempotency,
	})
	f.assignmentService = NewAssignmentService(AssignmentDependencies{
		TicketRepo:  tickets,
		AccountRepo: accounts,
		HistoryRepo: history,
		Dispatcher:  dispatcher,
	})
	f.triageService = NewTriageService(tickets, nil)

	f.customer = accounts.add("alice", domain.RoleCustomer).AsIdentity()
	f.staff = accounts.add("sam", domain.RoleStaff).AsIdentity()
	f.admin = accounts.add("ada", domain.RoleAdmin).AsIdentity()
	return f
}

func (f *fixture) openTicket(t testingT, subject string) *domain.Ticket {
	t.Helper()
	ticket, err := f.ticketService.CreateTicket(context.Background(), f.customer, TicketCreateInput{
		Subject:     subject,
		Description: "description for " + subject,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

// testingT is the slice of *testing.T the fixture helpers need.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}
