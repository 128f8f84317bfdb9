package domain

// Role is a member's authority level.
type Role string

const (
	RoleCustomer      Role = "CUSTOMER"
	RoleBusinessOwner Role = "BUSINESS_OWNER"
	RoleAdmin         Role = "ADMIN"
)

// Level orders roles; unknown roles rank below CUSTOMER.
func (r Role) Level() int {
	switch r {
	case RoleCustomer:
		return 1
	case RoleBusinessOwner:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

func (r Role) HasHigherAuthorityThan(other Role) bool {
	return r.Level() > other.Level()
}

func (r Role) IsBusinessOwnerOrHigher() bool {
	return r.Level() >= RoleBusinessOwner.Level()
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
