package domain

import "time"

// UserRole partitions callers into the three access scopes.
type UserRole string

const (
	RoleCustomer UserRole = "CUSTOMER"
	RoleStaff    UserRole = "STAFF"
	RoleAdmin    UserRole = "ADMIN"
)

// IsStaff reports whether the role carries staff-side privileges.
func (r UserRole) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Identity is the resolved caller passed into every operation.
type Identity struct {
	ID       string
	Username string
	Role     UserRole
}

// Account is the stored record behind an Identity.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AsIdentity projects the account into the caller shape services consume.
func (a Account) AsIdentity() Identity {
	return Identity{ID: a.ID, Username: a.Username, Role: a.Role}
}
