package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Role is a label in the fixed portal hierarchy.
type Role string

// Portal roles, lowest to highest.
const (
	RoleVisitor    Role = "VISITOR"
	RoleClient     Role = "CLIENT"
	RoleConsultant Role = "CONSULTANT"
	RoleAdmin      Role = "ADMIN"
)

// ParseRole normalises a role label. Unknown labels are returned as-is so that
// RankOf can classify them; callers never get an error for a bad role.
func ParseRole(raw string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(raw)))
}

// Action is the operation an actor attempts on a resource.
type Action int

const (
	ActionRead Action = iota + 1
	ActionWrite
	ActionDelete
)

// ParseAction converts the wire literal into an Action.
func ParseAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "read":
		return ActionRead, nil
	case "write":
		return ActionWrite, nil
	case "delete":
		return ActionDelete, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionWrite:
		return "write"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Grant is one consultant's authorization on one resource.
type Grant struct {
	Resource  string    `json:"resource"`
	CanRead   bool      `json:"canRead"`
	CanWrite  bool      `json:"canWrite"`
	CanDelete bool      `json:"canDelete"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Allows reports the flag matching action.
func (g Grant) Allows(action Action) bool {
	switch action {
	case ActionRead:
		return g.CanRead
	case ActionWrite:
		return g.CanWrite
	case ActionDelete:
		return g.CanDelete
	default:
		return false
	}
}

// Actor describes the authenticated caller of a request.
type Actor struct {
	Role   Role
	UserID string
}
