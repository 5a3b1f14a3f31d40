package access

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Middleware attaches a resolved Principal to every authenticated
// request. Each request gets its own immutable principal; nothing is
// shared between concurrent units of work.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Authenticate resolves the bearer token into a Principal and stores it
// in the request context along with the caller address for audit use.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		p, err := m.Resolver.Resolve(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, ErrTenantSuspended):
				http.Error(w, "tenant suspended", http.StatusForbidden)
			default:
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			}
			return
		}
		ctx := ContextWithPrincipal(r.Context(), p)
		ctx = ContextWithClientIP(ctx, clientAddr(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole restricts a route subtree to the given roles. Responds
// with the uniform forbidden text; no hint about which role was needed.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func clientAddr(r *http.Request) string {
	// chi's RealIP middleware has already rewritten RemoteAddr.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
