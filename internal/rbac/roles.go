package rbac

// RankUnknown sits below every valid rank.
const RankUnknown = -1

var roleRanks = map[Role]int{
	RoleVisitor:    0,
	RoleClient:     1,
	RoleConsultant: 2,
	RoleAdmin:      3,
}

// RankOf returns the hierarchy rank of role, or RankUnknown.
func RankOf(role Role) int {
	rank, ok := roleRanks[role]
	if !ok {
		return RankUnknown
	}
	return rank
}

// Valid reports whether role belongs to the hierarchy.
func (r Role) Valid() bool {
	return RankOf(r) != RankUnknown
}

// HasMinimumRole reports whether actor ranks at or above required.
// An unrecognized actor role never satisfies a requirement.
func HasMinimumRole(actor, required Role) bool {
	rank := RankOf(actor)
	if rank == RankUnknown {
		return false
	}
	return rank >= RankOf(required)
}

// IsRoleAtLeast is HasMinimumRole for an optional actor.
func IsRoleAtLeast(actor *Actor, required Role) bool {
	if actor == nil {
		return false
	}
	return HasMinimumRole(actor.Role, required)
}
