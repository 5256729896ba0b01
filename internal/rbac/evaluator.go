package rbac

import "errors"

// ErrUnknownAction is returned when an action literal is not read, write or delete.
var ErrUnknownAction = errors.New("rbac: unknown action")

// Resources a CLIENT may reach. The check is by name only.
var clientResources = map[string]struct{}{
	"dashboard":  {},
	"calculator": {},
}

// GrantLookup finds the authoritative grant for a consultant and resource.
type GrantLookup interface {
	Lookup(consultantID, resource string) (Grant, bool)
}

// GrantSet is an in-memory GrantLookup for a single consultant.
type GrantSet struct {
	consultantID string
	grants       map[string]Grant
}

// NewGrantSet indexes grants by resource. A later grant for the same resource
// replaces an earlier one.
func NewGrantSet(consultantID string, grants []Grant) GrantSet {
	indexed := make(map[string]Grant, len(grants))
	for _, g := range grants {
		indexed[g.Resource] = g
	}
	return GrantSet{consultantID: consultantID, grants: indexed}
}

// Lookup implements GrantLookup. Grants belonging to another consultant are never returned.
func (s GrantSet) Lookup(consultantID, resource string) (Grant, bool) {
	if consultantID == "" || consultantID != s.consultantID {
		return Grant{}, false
	}
	g, ok := s.grants[resource]
	return g, ok
}

// Len returns the number of distinct resources granted.
func (s GrantSet) Len() int {
	return len(s.grants)
}

// CanAccessResource decides whether an actor may perform action on resource.
//
//	ADMIN       always
//	CONSULTANT  grant flag for action; no grant means no
//	CLIENT      resource on the client allow-list, any action
//	otherwise   never
func CanAccessResource(role Role, actorID, resource string, action Action, lookup GrantLookup) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleConsultant:
		if lookup == nil {
			return false
		}
		grant, ok := lookup.Lookup(actorID, resource)
		if !ok {
			return false
		}
		return grant.Allows(action)
	case RoleClient:
		_, ok := clientResources[resource]
		return ok
	default:
		return false
	}
}
