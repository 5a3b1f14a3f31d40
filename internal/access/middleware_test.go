package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireRole(t *testing.T) {
	mw := RequireRole(RoleAdmin, RoleSuperAdmin)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name string
		p    *Principal
		want int
	}{
		{"no principal", nil, http.StatusUnauthorized},
		{"role outside the set", principal(RoleCashier, &branch1), http.StatusForbidden},
		{"admin", principal(RoleAdmin, nil), http.StatusNoContent},
		{"super admin", principal(RoleSuperAdmin, nil), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil)
			if tc.p != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), tc.p))
			}
			rec := httptest.NewRecorder()
			mw(next).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
