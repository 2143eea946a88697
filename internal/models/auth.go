package models

type Role string

const (
	RoleFan    Role = "fan"
	RoleTalent Role = "talent"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleFan, RoleTalent, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Caller is the authenticated identity behind a request. Core operations take it
// explicitly instead of reading request-scoped state.
type Caller struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
}

func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
