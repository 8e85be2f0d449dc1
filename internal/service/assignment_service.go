package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/music-store/support-service/internal/domain"
	"github.com/music-store/support-service/internal/events"
	"github.com/music-store/support-service/internal/repository"
	apperrors "github.com/music-store/support-service/pkg/util/errorutil"
)

// AssignmentService restricts who may claim a ticket and to whom it can
// be handed. A ticket holds at most one assignee; assigning replaces any
// previous one.
type AssignmentService struct {
	tickets    repository.TicketRepository
	accounts   repository.AccountRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	TicketRepo  repository.TicketRepository
	AccountRepo repository.AccountRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		accounts:   deps.AccountRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
	}
}

// Assign hands a ticket to a staff member. With no target the caller
// claims it for themselves; a target staff id requires the admin role.
func (s *AssignmentService) Assign(ctx context.Context, caller domain.Identity, ticketID string, targetStaffID *string) (*domain.Ticket, error) {
	if !caller.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}

	assigneeID := caller.ID
	if targetStaffID != nil && *targetStaffID != "" && *targetStaffID != caller.ID {
		if caller.Role != domain.RoleAdmin {
			return nil, apperrors.NewForbidden("directed assignment requires admin role")
		}
		target, err := s.accounts.GetByID(ctx, *targetStaffID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("staff", map[string]any{"staff_id": *targetStaffID})
			}
			return nil, apperrors.MapError(err)
		}
		if !target.Role.IsStaff() {
			return nil, apperrors.NewNotFound("staff", map[string]any{"staff_id": *targetStaffID})
		}
		assigneeID = target.ID
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	previous := ticket.AssignedStaffID
	ticket.AssignedStaffID = &assigneeID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.recordAssigneeChange(ctx, caller, ticket.ID, previous, assigneeID); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.publishAssignedEvent(ctx, caller, ticket.ID, assigneeID, previous)
	return ticket, nil
}

func (s *AssignmentService) recordAssigneeChange(ctx context.Context, actor domain.Identity, ticketID string, oldAssignee *string, newAssignee string) error {
	if s.history == nil {
		return nil
	}
	return s.history.Create(ctx, &domain.TicketHistory{
		TicketID:   ticketID,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		ChangeType: domain.ChangeTypeAssignee,
		OldValue:   map[string]any{"assigned_staff_id": oldAssignee},
		NewValue:   map[string]any{"assigned_staff_id": newAssignee},
	})
}

func (s *AssignmentService) publishAssignedEvent(ctx context.Context, actor domain.Identity, ticketID, assigneeID string, previous *string) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TicketID:  ticketID,
		Actor:     events.Actor{ID: actor.ID, Role: actor.Role},
		Timestamp: time.Now(),
		Payload: events.TicketAssignedPayload{
			AssignedStaffID: assigneeID,
			PreviousStaffID: previous,
		},
	})
}
