package domain

// Sender identifies the account that authored a message. Role is the
// canonical staff-vs-customer discriminator for rendering a thread.
type Sender struct {
	ID       string
	Username string
	Role     UserRole
}

// IsStaff reports whether the message came from the staff side.
func (s Sender) IsStaff() bool {
	return s.Role.IsStaff()
}

// RawSender carries the heterogeneous author fields older message rows
// were written with, before a unified sender was stamped at ingestion.
type RawSender struct {
	SenderID       *string
	SenderUsername *string
	SenderRole     *UserRole
	StaffID        *string
	StaffUsername  *string
	CustomerID     *string
	CustomerName   *string
	FromStaff      bool
}

// ResolveSender normalizes a RawSender into a Sender. The fallback order
// is fixed: an explicit sender role wins, then a staff association, then
// a customer association, then the from_staff flag, and finally the
// message is attributed to the customer side. Reconciliation happens
// here, once, so consumers never repeat it.
func ResolveSender(raw RawSender) Sender {
	sender := Sender{Role: RoleCustomer}
	if raw.SenderID != nil {
		sender.ID = *raw.SenderID
	}
	if raw.SenderUsername != nil {
		sender.Username = *raw.SenderUsername
	}

	switch {
	case raw.SenderRole != nil:
		sender.Role = *raw.SenderRole
	case raw.StaffID != nil:
		sender.Role = RoleStaff
	case raw.CustomerID != nil:
		sender.Role = RoleCustomer
	case raw.FromStaff:
		sender.Role = RoleStaff
	}

	if sender.ID == "" {
		if sender.IsStaff() && raw.StaffID != nil {
			sender.ID = *raw.StaffID
		} else if !sender.IsStaff() && raw.CustomerID != nil {
			sender.ID = *raw.CustomerID
		}
	}
	if sender.Username == "" {
		if sender.IsStaff() && raw.StaffUsername != nil {
			sender.Username = *raw.StaffUsername
		} else if !sender.IsStaff() && raw.CustomerName != nil {
			sender.Username = *raw.CustomerName
		}
	}
	return sender
}
