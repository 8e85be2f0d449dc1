package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/music-store/support-service/internal/api/http/handlers"
	"github.com/music-store/support-service/internal/auth"
	"github.com/music-store/support-service/internal/config"
	"github.com/music-store/support-service/internal/domain"
	"github.com/music-store/support-service/internal/observability"
	"github.com/music-store/support-service/internal/repository"
	"github.com/music-store/support-service/internal/service"
)

type memStore struct {
	mu       sync.Mutex
	seq      int
	accounts map[string]domain.Account
	tickets  map[string]domain.Ticket
	messages map[string][]domain.TicketMessage
	history  map[string][]domain.TicketHistory
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]domain.Account),
		tickets:  make(map[string]domain.Ticket),
		messages: make(map[string][]domain.TicketMessage),
		history:  make(map[string][]domain.TicketHistory),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

type memAccountRepo struct{ store *memStore }

func (r memAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	account.ID = r.store.nextID("account")
	account.CreatedAt = time.Now()
	r.store.accounts[account.ID] = *account
	return nil
}

func (r memAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	account, ok := r.store.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &account, nil
}

func (r memAccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, account := range r.store.accounts {
		if account.Email == email {
			match := account
			return &match, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, account := range r.store.accounts {
		if account.Username == username {
			match := account
			return &match, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memTicketRepo struct{ store *memStore }

func (r memTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ticket.ID = r.store.nextID("ticket")
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.store.tickets[ticket.ID] = *ticket
	return nil
}

func (r memTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	r.store.tickets[ticket.ID] = *ticket
	return nil
}

func (r memTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ticket, ok := r.store.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (r memTicketRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Ticket, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.store.tickets {
		if ticket.CustomerID == customerID {
			out = append(out, ticket)
		}
	}
	return out, nil
}

func (r memTicketRepo) ListSummaries(ctx context.Context, filter repository.TicketFilter) ([]domain.TicketSummary, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.TicketSummary
	for _, ticket := range r.store.tickets {
		if len(filter.Statuses) > 0 {
			matched := false
			for _, status := range filter.Statuses {
				if ticket.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if filter.Unassigned != nil && *filter.Unassigned && ticket.Assigned() {
			continue
		}
		out = append(out, domain.TicketSummary{Ticket: ticket})
	}
	return out, nil
}

func (r memTicketRepo) Stats(ctx context.Context) (repository.TicketStats, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return repository.TicketStats{Total: len(r.store.tickets)}, nil
}

type memMessageRepo struct{ store *memStore }

func (r memMessageRepo) Create(ctx context.Context, msg *domain.TicketMessage) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	msg.ID = r.store.nextID("message")
	msg.CreatedAt = time.Now()
	r.store.messages[msg.TicketID] = append(r.store.messages[msg.TicketID], *msg)
	return nil
}

func (r memMessageRepo) GetByID(ctx context.Context, id string) (*domain.TicketMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, thread := range r.store.messages {
		for _, msg := range thread {
			if msg.ID == id {
				match := msg
				return &match, nil
			}
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memMessageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]domain.TicketMessage(nil), r.store.messages[ticketID]...), nil
}

type memHistoryRepo struct{ store *memStore }

func (r memHistoryRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	history.ID = r.store.nextID("history")
	history.CreatedAt = time.Now()
	r.store.history[history.TicketID] = append(r.store.history[history.TicketID], *history)
	return nil
}

func (r memHistoryRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]domain.TicketHistory(nil), r.store.history[ticketID]...), nil
}

type testApp struct {
	app   *fiber.App
	store *memStore
	auth  *service.AuthService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store := newMemStore()
	accounts := memAccountRepo{store: store}
	tickets := memTicketRepo{store: store}
	messages := memMessageRepo{store: store}
	history := memHistoryRepo{store: store}

	authService := service.NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 30,
		BcryptCost:            4,
	}, accounts)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		HistoryRepo: history,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo:  tickets,
		AccountRepo: accounts,
		HistoryRepo: history,
	})
	triageService := service.NewTriageService(tickets, nil)

	metrics := observability.NewMetrics("support-service-test")
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-service-test", "test", nil, nil),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService, assignmentService, triageService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), accounts),
		Metrics:        metrics,
	})
	return &testApp{app: app, store: store, auth: authService}
}

func (ta *testApp) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// loginAs registers a customer account and returns a bearer token. For
// staff and admin the stored role is flipped before logging in, standing
// in for out-of-band provisioning.
func (ta *testApp) loginAs(t *testing.T, username string, role domain.UserRole) string {
	t.Helper()
	resp := ta.request(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}

	if role != domain.RoleCustomer {
		ta.store.mu.Lock()
		for id, account := range ta.store.accounts {
			if account.Username == username {
				account.Role = role
				ta.store.accounts[id] = account
			}
		}
		ta.store.mu.Unlock()
	}

	resp = ta.request(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    username + "@example.com",
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d", username, resp.StatusCode)
	}
	var parsed struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return parsed.Data.Token
}

func TestRolePartitionedRoutes(t *testing.T) {
	ta := newTestApp(t)
	customerToken := ta.loginAs(t, "alice", domain.RoleCustomer)
	staffToken := ta.loginAs(t, "sam", domain.RoleStaff)

	// Customers open tickets; staff cannot.
	resp := ta.request(t, http.MethodPost, "/tickets/", customerToken, map[string]string{
		"subject":     "Broken tuner",
		"description": "The low E tuner slips constantly.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("customer create: status %d", resp.StatusCode)
	}

	resp = ta.request(t, http.MethodPost, "/tickets/", staffToken, map[string]string{
		"subject":     "x",
		"description": "y",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("staff on customer surface: status %d, want 403", resp.StatusCode)
	}

	// The staff surface rejects customers.
	resp = ta.request(t, http.MethodGet, "/staff/tickets/", customerToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("customer on staff surface: status %d, want 403", resp.StatusCode)
	}
	resp = ta.request(t, http.MethodGet, "/staff/tickets/", staffToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("staff listing: status %d, want 200", resp.StatusCode)
	}

	// Unauthenticated requests get 401.
	resp = ta.request(t, http.MethodGet, "/tickets/", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous: status %d, want 401", resp.StatusCode)
	}
}

func TestStaffWorkflowOverHTTP(t *testing.T) {
	ta := newTestApp(t)
	customerToken := ta.loginAs(t, "alice", domain.RoleCustomer)
	staffToken := ta.loginAs(t, "sam", domain.RoleStaff)

	resp := ta.request(t, http.MethodPost, "/tickets/", customerToken, map[string]string{
		"subject":     "No sound from amp",
		"description": "Powers on but stays silent.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	ticketID := created.Data.ID

	resp = ta.request(t, http.MethodPost, "/staff/tickets/"+ticketID+"/assign", staffToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("self-assign: status %d", resp.StatusCode)
	}

	resp = ta.request(t, http.MethodPost, "/staff/tickets/"+ticketID+"/reply", staffToken, map[string]string{
		"message": "Check the standby switch first.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("reply: status %d", resp.StatusCode)
	}

	resp = ta.request(t, http.MethodPut, "/staff/tickets/"+ticketID+"/status", staffToken, map[string]string{
		"status": "CLOSED",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close: status %d", resp.StatusCode)
	}

	// The closed thread rejects further messages with the error envelope.
	resp = ta.request(t, http.MethodPost, "/tickets/"+ticketID+"/messages", customerToken, map[string]string{
		"content": "It is still silent.",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("message on closed ticket: status %d, want 409", resp.StatusCode)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != "STATE_CONFLICT" {
		t.Errorf("error code = %s, want STATE_CONFLICT", envelope.Error.Code)
	}
}
