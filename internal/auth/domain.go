package auth

import (
	"time"

	"github.com/formwell/formwell-portal/internal/rbac"
)

// User represents a portal account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         rbac.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor converts the user into the request actor descriptor.
func (u User) Actor() *rbac.Actor {
	return &rbac.Actor{Role: u.Role, UserID: u.ID}
}
