package service

import "strings"

// Identity describes the authenticated caller as read from the bearer token.
type Identity struct {
	UserID string
	// Name is the token's display name claim, if any.
	Name string
	Role string
}

// IsOrganizer reports whether the token grants the organizer role.
func (i Identity) IsOrganizer() bool {
	return strings.EqualFold(i.Role, "organizer")
}
