package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/music-store/support-service/internal/domain"
)

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	GetByID(ctx context.Context, id string) (*domain.TicketMessage, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds the repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

// Create stamps the unified sender columns and, for compatibility with
// rows written before the sender was unified, the legacy author columns
// as well.
func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	var staffID, customerID *string
	fromStaff := msg.Sender.IsStaff()
	if fromStaff {
		staffID = &msg.Sender.ID
	} else {
		customerID = &msg.Sender.ID
	}

	const query = `
        INSERT INTO ticket_messages (ticket_id, sender_id, sender_role, staff_id, customer_id, from_staff, content)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.Sender.ID,
		msg.Sender.Role,
		staffID,
		customerID,
		fromStaff,
		msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
}

const messageSelect = `
    SELECT m.id, m.ticket_id, m.content, m.created_at,
           m.sender_id, a.username, m.sender_role,
           m.staff_id, sa.username,
           m.customer_id, ca.username,
           m.from_staff
    FROM ticket_messages m
    LEFT JOIN accounts a ON a.id = m.sender_id
    LEFT JOIN accounts sa ON sa.id = m.staff_id
    LEFT JOIN accounts ca ON ca.id = m.customer_id`

func (r *ticketMessageRepository) GetByID(ctx context.Context, id string) (*domain.TicketMessage, error) {
	rows, err := r.pool.Query(ctx, messageSelect+` WHERE m.id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &msgs[0], nil
}

// ListByTicket returns the thread in append order; creation-time ties
// break on id so the ordering is total.
func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	rows, err := r.pool.Query(ctx, messageSelect+` WHERE m.ticket_id=$1 ORDER BY m.created_at ASC, m.id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// scanMessages resolves the heterogeneous author columns into a stamped
// sender exactly once, at the ingestion boundary.
func scanMessages(rows pgx.Rows) ([]domain.TicketMessage, error) {
	var result []domain.TicketMessage
	for rows.Next() {
		var (
			msg domain.TicketMessage
			raw domain.RawSender
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Content,
			&msg.CreatedAt,
			&raw.SenderID,
			&raw.SenderUsername,
			&raw.SenderRole,
			&raw.StaffID,
			&raw.StaffUsername,
			&raw.CustomerID,
			&raw.CustomerName,
			&raw.FromStaff,
		); err != nil {
			return nil, err
		}
		msg.Sender = domain.ResolveSender(raw)
		result = append(result, msg)
	}
	return result, rows.Err()
}
