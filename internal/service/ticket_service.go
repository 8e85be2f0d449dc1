package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/music-store/support-service/internal/config"
	"github.com/music-store/support-service/internal/domain"
	"github.com/music-store/support-service/internal/events"
	"github.com/music-store/support-service/internal/repository"
	apperrors "github.com/music-store/support-service/pkg/util/errorutil"
)

// IdempotencyStore deduplicates message appends keyed by a client token.
// Reserve claims a key or reports the value a previous claim stored;
// Complete overwrites the claim with the final value; Release drops a
// claim whose request failed so the client can retry with the same key.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error)
	Complete(ctx context.Context, key, value string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// TicketService coordinates the ticket lifecycle and message threads.
type TicketService struct {
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	history     repository.TicketHistoryRepository
	dispatcher  events.Dispatcher
	idempotency IdempotencyStore
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Idempotency IdempotencyStore
}

// TicketCreateInput describes the ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	Priority    domain.TicketPriority
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		history:     deps.HistoryRepo,
		dispatcher:  deps.Dispatcher,
		idempotency: deps.Idempotency,
	}
}

// CreateTicket opens a new ticket owned by the calling customer. Tickets
// always start OPEN and unassigned.
func (s *TicketService) CreateTicket(ctx context.Context, caller domain.Identity, input TicketCreateInput) (*domain.Ticket, error) {
	if caller.Role != domain.RoleCustomer {
		return nil, apperrors.NewForbidden("only customers can open tickets")
	}
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	if subject == "" || description == "" {
		return nil, apperrors.NewValidationError("subject and description required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	ticket := &domain.Ticket{
		CustomerID:  caller.ID,
		Subject:     subject,
		Description: description,
		Status:      domain.TicketStatusOpen,
		Priority:    priority,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: caller.ID, Role: caller.Role},
		Payload: events.TicketCreatedPayload{
			Subject:  ticket.Subject,
			Priority: ticket.Priority,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket, enforcing ownership for customers. Staff
// and admin callers see every ticket.
func (s *TicketService) GetTicket(ctx context.Context, caller domain.Identity, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !callerCanSeeTicket(caller, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListCustomerTickets returns the caller's own tickets.
func (s *TicketService) ListCustomerTickets(ctx context.Context, caller domain.Identity) ([]domain.Ticket, error) {
	if caller.Role != domain.RoleCustomer {
		return nil, apperrors.NewForbidden("customer scope required")
	}
	tickets, err := s.tickets.ListByCustomer(ctx, caller.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// SetStatus moves a ticket to any known status. Transitions are
// unrestricted: staff keep full manual control, including reopening.
// ClosedAt is stamped on entering CLOSED and cleared on leaving it.
func (s *TicketService) SetStatus(ctx context.Context, caller domain.Identity, ticketID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if !caller.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	oldStatus := ticket.Status
	if newStatus == domain.TicketStatusClosed {
		now := time.Now()
		ticket.ClosedAt = &now
	} else if ticket.ClosedAt != nil {
		ticket.ClosedAt = nil
	}
	ticket.Status = newStatus
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.recordStatusChange(ctx, caller, ticket.ID, oldStatus, newStatus); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: caller.ID, Role: caller.Role},
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return ticket, nil
}

// CloseTicket is a convenience for SetStatus to CLOSED.
func (s *TicketService) CloseTicket(ctx context.Context, caller domain.Identity, ticketID string) (*domain.Ticket, error) {
	return s.SetStatus(ctx, caller, ticketID, domain.TicketStatusClosed)
}

// AppendMessage adds one entry to a ticket's thread. The sender identity
// is stamped from the caller. Closed tickets reject messages from both
// sides; staff reopen via SetStatus first. When the client supplies an
// idempotency key, a repeated submission returns the original message
// instead of appending a duplicate.
func (s *TicketService) AppendMessage(ctx context.Context, caller domain.Identity, ticketID, content, idempotencyKey string) (*domain.TicketMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("content required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !callerCanSeeTicket(caller, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewStateConflict("ticket is closed", ticket.Status)
	}

	reservation := ""
	if idempotencyKey != "" && s.idempotency != nil {
		reservation = "idem:message:" + caller.ID + ":" + ticketID + ":" + idempotencyKey
		existing, claimed, err := s.idempotency.Reserve(ctx, reservation, "pending", config.IdempotencyTTL)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !claimed {
			if msgID, done := strings.CutPrefix(existing, "done:"); done {
				msg, err := s.messages.GetByID(ctx, msgID)
				if err != nil {
					return nil, apperrors.MapError(err)
				}
				return msg, nil
			}
			return nil, apperrors.NewConflict("duplicate message submission in flight", nil)
		}
	}

	msg := &domain.TicketMessage{
		TicketID: ticket.ID,
		Sender: domain.Sender{
			ID:       caller.ID,
			Username: caller.Username,
			Role:     caller.Role,
		},
		Content: content,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if reservation != "" {
			_ = s.idempotency.Release(ctx, reservation)
		}
		return nil, apperrors.MapError(err)
	}
	if reservation != "" {
		_ = s.idempotency.Complete(ctx, reservation, "done:"+msg.ID, config.IdempotencyTTL)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    events.Actor{ID: caller.ID, Role: caller.Role},
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			SenderRole:  msg.Sender.Role,
			BodyPreview: stringPreview(msg.Content, 120),
		},
	})
	return msg, nil
}

// ListMessages returns a ticket's thread in append order, scoped the
// same way as GetTicket.
func (s *TicketService) ListMessages(ctx context.Context, caller domain.Identity, ticketID string) ([]domain.TicketMessage, error) {
	ticket, err := s.GetTicket(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return msgs, nil
}

// ListHistory returns a ticket's audit trail for staff callers.
func (s *TicketService) ListHistory(ctx context.Context, caller domain.Identity, ticketID string) ([]domain.TicketHistory, error) {
	if !caller.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if _, err := s.GetTicket(ctx, caller, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func callerCanSeeTicket(caller domain.Identity, ticket *domain.Ticket) bool {
	if caller.Role.IsStaff() {
		return true
	}
	return ticket.CustomerID == caller.ID
}

func (s *TicketService) recordStatusChange(ctx context.Context, actor domain.Identity, ticketID string, oldStatus, newStatus domain.TicketStatus) error {
	if s.history == nil {
		return nil
	}
	return s.history.Create(ctx, &domain.TicketHistory{
		TicketID:   ticketID,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ChangeType: domain.ChangeTypeStatus,
		OldValue:   map[string]any{"status": oldStatus},
		NewValue:   map[string]any{"status": newStatus},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// stringPreview truncates to at most max bytes without splitting a rune.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	cut := max
	suffix := ""
	if max > 3 {
		cut = max - 3
		suffix = "..."
	}
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + suffix
}
