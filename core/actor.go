package core

import "strings"

// Actor is the authenticated staff member performing a request.
// It is built from the request's JWT claims and passed explicitly to every mutating call.
type Actor struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// SystemActor is used by the admin CLI.
var SystemActor = Actor{Username: "system"}

func (a Actor) IsZero() bool { return a.UserID == "" && a.Username == "" }

func (a Actor) HasRolePrefix(prefix string) bool {
	for _, role := range a.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the actor holds one of roles; an empty list allows everyone.
func (a Actor) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, want := range roles {
		for _, role := range a.Roles {
			if role == want {
				return true
			}
		}
	}
	return false
}
