package auth

import (
	"errors"
	"net/http"
	"strings"
)

var ErrForbidden = errors.New("forbidden")

// Roles form a strict ladder: a viewer browses sessions, runs and advice,
// an editor additionally mutates pipeline state, an admin inherits both.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// Level ranks a role on the ladder; unknown or empty roles rank zero and
// never satisfy a requirement.
func Level(role string) int {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

func HasAtLeast(roles []string, required string) bool {
	requiredLevel := Level(required)
	if requiredLevel == 0 {
		return false
	}
	for _, role := range roles {
		if Level(role) >= requiredLevel {
			return true
		}
	}
	return false
}

// RequiredRoleForRequest maps a request onto the role ladder. Reads are
// open to viewers; anything that mutates pipeline state (triggering runs,
// applying advice, forking sessions, pinning) needs editor.
func RequiredRoleForRequest(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer
	default:
		return RoleEditor
	}
}
