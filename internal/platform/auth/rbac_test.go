package auth

import (
	"net/http"
	"testing"
)

func TestHasAtLeast(t *testing.T) {
	if !HasAtLeast([]string{"viewer"}, RoleViewer) {
		t.Fatalf("viewer should satisfy viewer")
	}
	if HasAtLeast([]string{"viewer"}, RoleEditor) {
		t.Fatalf("viewer should not satisfy editor")
	}
	if !HasAtLeast([]string{"editor"}, RoleViewer) {
		t.Fatalf("editor should satisfy viewer")
	}
	if !HasAtLeast([]string{"admin"}, RoleEditor) {
		t.Fatalf("admin should satisfy editor")
	}
	if HasAtLeast(nil, RoleViewer) {
		t.Fatalf("no roles should not satisfy viewer")
	}
	if HasAtLeast([]string{"owner"}, RoleViewer) {
		t.Fatalf("unknown role should rank zero")
	}
	if HasAtLeast([]string{"admin"}, "owner") {
		t.Fatalf("unknown requirement should never be satisfied")
	}
}

func TestLevel(t *testing.T) {
	if Level(" Admin ") != 3 {
		t.Fatalf("Level should trim and case-fold")
	}
	if Level("owner") != 0 {
		t.Fatalf("unknown role should rank zero")
	}
}

func TestRequiredRoleForRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	if got := RequiredRoleForRequest(req); got != RoleViewer {
		t.Fatalf("RequiredRoleForRequest(GET)=%q, want viewer", got)
	}
	req.Method = http.MethodPost
	if got := RequiredRoleForRequest(req); got != RoleEditor {
		t.Fatalf("RequiredRoleForRequest(POST)=%q, want editor", got)
	}
}

func TestActorFromContextFallsBackToSystem(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	if got := ActorFromContext(req.Context()); got != "system" {
		t.Fatalf("ActorFromContext(empty)=%q, want system", got)
	}

	ctx := ContextWithIdentity(req.Context(), Identity{Subject: "alice"})
	if got := ActorFromContext(ctx); got != "alice" {
		t.Fatalf("ActorFromContext=%q, want alice", got)
	}
}
