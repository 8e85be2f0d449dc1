package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/music-store/support-service/internal/api/dto"
	"github.com/music-store/support-service/internal/domain"
	"github.com/music-store/support-service/internal/service"
	apperrors "github.com/music-store/support-service/pkg/util/errorutil"
)

// StaffTicketsHandler handles the staff/admin triage and workflow endpoints.
type StaffTicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
	triage      *service.TriageService
}

// NewStaffTicketsHandler constructs the handler.
func NewStaffTicketsHandler(tickets *service.TicketService, assignments *service.AssignmentService, triage *service.TriageService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: tickets, assignments: assignments, triage: triage}
}

// ListTickets GET /staff/tickets.
func (h *StaffTicketsHandler) ListTickets(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var statuses []domain.TicketStatus
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			statuses = append(statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(part))))
		}
	}
	summaries, err := h.triage.ListAll(c.UserContext(), caller, statuses)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summaryResponses(summaries)})
}

// UrgentTickets GET /staff/tickets/urgent.
func (h *StaffTicketsHandler) UrgentTickets(c *fiber.Ctx) error {
	return h.derivedView(c, h.triage.Urgent)
}

// UnassignedTickets GET /staff/tickets/unassigned.
func (h *StaffTicketsHandler) UnassignedTickets(c *fiber.Ctx) error {
	return h.derivedView(c, h.triage.Unassigned)
}

// NeedsAttentionTickets GET /staff/tickets/needs-attention.
func (h *StaffTicketsHandler) NeedsAttentionTickets(c *fiber.Ctx) error {
	return h.derivedView(c, h.triage.NeedsAttention)
}

// SearchTickets GET /staff/tickets/search?query=.
func (h *StaffTicketsHandler) SearchTickets(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	summaries, err := h.triage.Search(c.UserContext(), caller, c.Query("query"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summaryResponses(summaries)})
}

// Stats GET /staff/tickets/stats.
func (h *StaffTicketsHandler) Stats(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	stats, err := h.triage.Stats(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.DashboardStatsResponse{
		Total:          stats.Total,
		Urgent:         stats.Urgent,
		Unassigned:     stats.Unassigned,
		NeedsAttention: stats.NeedsAttention,
		Closed:         stats.Closed,
	}})
}

// GetTicket GET /staff/tickets/:id.
func (h *StaffTicketsHandler) GetTicket(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListMessages GET /staff/tickets/:id/messages.
func (h *StaffTicketsHandler) ListMessages(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	msgs, err := h.tickets.ListMessages(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": messageResponses(msgs)})
}

// ListHistory GET /staff/tickets/:id/history.
func (h *StaffTicketsHandler) ListHistory(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.ListHistory(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			ActorID:    entry.ActorID,
			ActorRole:  entry.ActorRole,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Reply POST /staff/tickets/:id/reply.
func (h *StaffTicketsHandler) Reply(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req dto.StaffReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.tickets.AppendMessage(c.UserContext(), caller, c.Params("id"), req.Message, c.Get("Idempotency-Key"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// Assign POST /staff/tickets/:id/assign. An empty body self-assigns;
// admins may direct the ticket to another staff member.
func (h *StaffTicketsHandler) Assign(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var target *string
	if len(c.Body()) > 0 {
		var req dto.AssignRequest
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
		if req.StaffID != "" {
			target = &req.StaffID
		}
	}
	ticket, err := h.assignments.Assign(c.UserContext(), caller, c.Params("id"), target)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateStatus PUT /staff/tickets/:id/status.
func (h *StaffTicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.SetStatus(c.UserContext(), caller, c.Params("id"), domain.TicketStatus(strings.ToUpper(string(req.Status))))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CloseTicket POST /staff/tickets/:id/close.
func (h *StaffTicketsHandler) CloseTicket(c *fiber.Ctx) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.CloseTicket(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func (h *StaffTicketsHandler) derivedView(c *fiber.Ctx, view func(ctx context.Context, caller domain.Identity) ([]domain.TicketSummary, error)) error {
	caller, err := callerIdentity(c)
	if err != nil {
		return err
	}
	summaries, err := view(c.UserContext(), caller)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": summaryResponses(summaries)})
}

func summaryResponses(summaries []domain.TicketSummary) []dto.TicketSummaryResponse {
	items := make([]dto.TicketSummaryResponse, 0, len(summaries))
	for i := range summaries {
		items = append(items, ticketSummaryResponse(&summaries[i]))
	}
	return items
}
