package dto

import (
	"time"

	"github.com/music-store/support-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority,omitempty"`
}

// CreateMessageRequest payload for customer message appends.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// StaffReplyRequest payload for staff replies.
type StaffReplyRequest struct {
	Message string `json:"message"`
}

// AssignRequest payload; empty body means self-assign.
type AssignRequest struct {
	StaffID string `json:"staffId,omitempty"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// TicketResponse is the canonical ticket shape.
type TicketResponse struct {
	ID              string                `json:"id"`
	CustomerID      string                `json:"customer_id"`
	AssignedStaffID *string               `json:"assigned_staff_id"`
	Subject         string                `json:"subject"`
	Description     string                `json:"description"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
}

// TicketSummaryResponse carries the denormalized fields staff listings
// need to render without a per-ticket fetch.
type TicketSummaryResponse struct {
	TicketResponse
	CustomerName       string     `json:"customer_name"`
	AssignedStaffName  *string    `json:"assigned_staff_name"`
	MessageCount       int        `json:"message_count"`
	LastMessageSnippet *string    `json:"last_message_snippet"`
	LastMessageAt      *time.Time `json:"last_message_at"`
}

// SenderResponse identifies a message author.
type SenderResponse struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Role     domain.UserRole `json:"role"`
}

// MessageResponse represents one thread entry. FromStaff mirrors the
// resolved sender role for clients still reading the legacy flag.
type MessageResponse struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticket_id"`
	Sender    SenderResponse `json:"sender"`
	FromStaff bool           `json:"from_staff"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}

// DashboardStatsResponse carries the staff dashboard counters.
type DashboardStatsResponse struct {
	Total          int `json:"total"`
	Urgent         int `json:"urgent"`
	Unassigned     int `json:"unassigned"`
	NeedsAttention int `json:"needs_attention"`
	Closed         int `json:"closed"`
}

// TicketHistoryResponse is one audit trail entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	ActorID    string                  `json:"actor_id"`
	ActorRole  domain.UserRole         `json:"actor_role"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}
