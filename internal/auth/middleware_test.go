package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, role string, expires time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expires)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func protectedHandler(t *testing.T, gotRole *Role, gotSubject *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotRole != nil {
			*gotRole = RoleFromContext(r.Context())
		}
		if gotSubject != nil {
			*gotSubject = SubjectFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func testMiddleware() *Middleware {
	policy := NewDefaultPolicy([]string{"/healthz"}, []string{"/metrics"})
	return NewMiddleware(testSecret, policy)
}

func TestMiddlewareAllowsExemptPaths(t *testing.T) {
	handler := testMiddleware().Wrap(protectedHandler(t, nil, nil))

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	handler := testMiddleware().Wrap(protectedHandler(t, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	handler := testMiddleware().Wrap(protectedHandler(t, nil, nil))

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "admin"})
	signed, err := other.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/abc", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	handler := testMiddleware().Wrap(protectedHandler(t, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/abc", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "admin", -time.Minute))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMiddlewareEnforcesRoles(t *testing.T) {
	handler := testMiddleware().Wrap(protectedHandler(t, nil, nil))

	cases := []struct {
		name   string
		method string
		path   string
		role   string
		want   int
	}{
		{"viewer reads invoice", http.MethodGet, "/api/v1/invoices/abc", "viewer", http.StatusOK},
		{"viewer denied upload", http.MethodPost, "/api/v1/invoice-files", "viewer", http.StatusForbidden},
		{"operator uploads", http.MethodPost, "/api/v1/invoice-files", "operator", http.StatusOK},
		{"viewer denied document", http.MethodGet, "/api/v1/invoices/abc/document", "viewer", http.StatusForbidden},
		{"operator gets document", http.MethodGet, "/api/v1/invoices/abc/document", "operator", http.StatusOK},
		{"viewer lists agreements", http.MethodGet, "/api/v1/agreements", "viewer", http.StatusOK},
		{"operator denied agreement write", http.MethodPost, "/api/v1/agreements", "operator", http.StatusForbidden},
		{"admin writes agreement", http.MethodPost, "/api/v1/agreements", "admin", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, tc.role, time.Hour))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestMiddlewarePropagatesIdentity(t *testing.T) {
	var role Role
	var subject string
	handler := testMiddleware().Wrap(protectedHandler(t, &role, &subject))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices/abc", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "operator", time.Hour))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if role != RoleOperator || subject != "user-1" {
		t.Fatalf("identity not propagated: %q %q", role, subject)
	}
}

func TestParseJWTRejectsUnknownRole(t *testing.T) {
	if _, err := ParseJWT(signToken(t, "superuser", time.Hour), testSecret); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestRoleAtLeast(t *testing.T) {
	if !RoleAtLeast(RoleAdmin, RoleViewer) {
		t.Fatal("admin should satisfy viewer")
	}
	if RoleAtLeast(RoleViewer, RoleOperator) {
		t.Fatal("viewer should not satisfy operator")
	}
	if RoleAtLeast("", RoleViewer) {
		t.Fatal("unknown role should not satisfy viewer")
	}
}
