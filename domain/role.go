package domain

import "strings"

// Role is a derived capability label. It is never persisted.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole safely parses a string into a Role.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleMember:
		return RoleMember, true
	case RoleModerator:
		return RoleModerator, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Capabilities is the flag set exposed to views.
type Capabilities struct {
	IsAdmin     bool `json:"isAdmin"`
	IsModerator bool `json:"isModerator"`
}

// ResolveRole derives capabilities from the user's role claim and the metadata
// roles list. It is pure and total: nil users and unknown claims grant nothing,
// and admin is never implied by moderator.
func ResolveRole(user *User) Capabilities {
	if user == nil {
		return Capabilities{}
	}
	claims := map[Role]bool{}
	if role, ok := ParseRole(user.Role); ok {
		claims[role] = true
	}
	for _, raw := range strings.Split(user.Metadata[MetaRoles], ",") {
		if role, ok := ParseRole(raw); ok {
			claims[role] = true
		}
	}
	return Capabilities{
		IsAdmin:     claims[RoleAdmin],
		IsModerator: claims[RoleModerator],
	}
}

// Role returns the highest role the capabilities grant.
func (c Capabilities) Role() Role {
	switch {
	case c.IsAdmin:
		return RoleAdmin
	case c.IsModerator:
		return RoleModerator
	default:
		return RoleMember
	}
}

// Allows reports whether the capabilities satisfy the required role.
// Admins pass moderator gates; unknown requirements are denied.
func (c Capabilities) Allows(required Role) bool {
	switch required {
	case "", RoleMember:
		return true
	case RoleModerator:
		return c.IsModerator || c.IsAdmin
	case RoleAdmin:
		return c.IsAdmin
	default:
		return false
	}
}
