package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/music-store/support-service/internal/domain"
)

// TicketFilter narrows staff-side listings.
type TicketFilter struct {
	CustomerID *string
	Statuses   []domain.TicketStatus
	Unassigned *bool
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketStats aggregates counters for the staff dashboard header.
type TicketStats struct {
	Total      int
	Urgent     int
	Unassigned int
	Closed     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Ticket, error)
	ListSummaries(ctx context.Context, filter TicketFilter) ([]domain.TicketSummary, error)
	Stats(ctx context.Context) (TicketStats, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (customer_id, assigned_staff_id, subject, description, status, priority)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.CustomerID,
		ticket.AssignedStaffID,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// Update writes the mutable fields. Subject, description, and ownership
// never change after creation. The write is unconditional: concurrent
// writers resolve last-writer-wins.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assigned_staff_id=$1, status=$2, priority=$3, closed_at=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`
	if err := r.pool.QueryRow(ctx, query,
		ticket.AssignedStaffID,
		ticket.Status,
		ticket.Priority,
		ticket.ClosedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt); err != nil {
		return err
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `
        SELECT id, customer_id, assigned_staff_id, subject, description, status, priority,
               created_at, updated_at, closed_at
        FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.CustomerID,
		&ticket.AssignedStaffID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Ticket, error) {
	const query = `
        SELECT id, customer_id, assigned_staff_id, subject, description, status, priority,
               created_at, updated_at, closed_at
        FROM tickets WHERE customer_id=$1
        ORDER BY updated_at DESC`
	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

const summarySelect = `
    SELECT t.id, t.customer_id, t.assigned_staff_id, t.subject, t.description, t.status, t.priority,
           t.created_at, t.updated_at, t.closed_at,
           c.username AS customer_name,
           s.username AS assigned_staff_name,
           COALESCE(m.message_count, 0) AS message_count,
           m.last_content,
           m.last_created_at
    FROM tickets t
    JOIN accounts c ON c.id = t.customer_id
    LEFT JOIN accounts s ON s.id = t.assigned_staff_id
    LEFT JOIN LATERAL (
        SELECT COUNT(*) AS message_count,
               MAX(created_at) AS last_created_at,
               (SELECT LEFT(content, 120) FROM ticket_messages
                WHERE ticket_id = t.id ORDER BY created_at DESC, id DESC LIMIT 1) AS last_content
        FROM ticket_messages WHERE ticket_id = t.id
    ) m ON TRUE`

// ListSummaries returns denormalized rows for staff listings so a list
// renders without a second round trip per ticket.
func (r *ticketRepository) ListSummaries(ctx context.Context, filter TicketFilter) ([]domain.TicketSummary, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("t.customer_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Unassigned != nil {
		if *filter.Unassigned {
			clauses = append(clauses, "t.assigned_staff_id IS NULL")
		} else {
			clauses = append(clauses, "t.assigned_staff_id IS NOT NULL")
		}
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.TrimSpace(*filter.SearchTerm) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(t.subject ILIKE %s OR EXISTS (SELECT 1 FROM ticket_messages mm WHERE mm.ticket_id = t.id AND mm.content ILIKE %s))",
			placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY t.updated_at DESC LIMIT %d OFFSET %d",
		summarySelect, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketSummary
	for rows.Next() {
		var summary domain.TicketSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.CustomerID,
			&summary.AssignedStaffID,
			&summary.Subject,
			&summary.Description,
			&summary.Status,
			&summary.Priority,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&summary.ClosedAt,
			&summary.CustomerName,
			&summary.AssignedStaffName,
			&summary.MessageCount,
			&summary.LastMessageSnippet,
			&summary.LastMessageAt,
		); err != nil {
			return nil, err
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

func (r *ticketRepository) Stats(ctx context.Context) (TicketStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status = 'URGENT'),
               COUNT(*) FILTER (WHERE assigned_staff_id IS NULL),
               COUNT(*) FILTER (WHERE status = 'CLOSED')
        FROM tickets`
	var stats TicketStats
	if err := r.pool.QueryRow(ctx, query).Scan(
		&stats.Total,
		&stats.Urgent,
		&stats.Unassigned,
		&stats.Closed,
	); err != nil {
		return TicketStats{}, err
	}
	return stats, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.CustomerID,
			&ticket.AssignedStaffID,
			&ticket.Subject,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
