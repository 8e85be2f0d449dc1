package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusUrgent     TicketStatus = "URGENT"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// ValidStatus reports whether s is one of the known lifecycle states.
// Any known status is reachable from any other; staff keep full manual
// control, including reopening a closed ticket.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusUrgent, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority is informational only and gates no operation.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. Subject, description,
// and the owning customer are immutable after creation.
type Ticket struct {
	ID              string
	CustomerID      string
	AssignedStaffID *string
	Subject         string
	Description     string
	Status          TicketStatus
	Priority        TicketPriority
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time
}

// Assigned reports whether a staff member currently owns the ticket.
func (t *Ticket) Assigned() bool {
	return t.AssignedStaffID != nil && *t.AssignedStaffID != ""
}

// TicketSummary is the denormalized row staff listings are built from,
// carrying enough context to render a list without per-ticket fetches.
type TicketSummary struct {
	Ticket
	CustomerName       string
	AssignedStaffName  *string
	MessageCount       int
	LastMessageSnippet *string
	LastMessageAt      *time.Time
}
