package domain

import "time"

// TicketMessage is one entry in a ticket's append-only conversation.
// Content and sender are immutable; there is no edit or delete path.
type TicketMessage struct {
	ID        string
	TicketID  string
	Sender    Sender
	Content   string
	CreatedAt time.Time
}
