package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mistakeknot/tasksync/internal/core"
)

// Identity headers sent by the sync client on every pull.
const (
	HeaderEmail            = "X-User-Email"
	HeaderEncryptionSecret = "X-Encryption-Secret"
	HeaderUUID             = "X-User-UUID"
)

type contextKey struct{}

// FromContext returns the identity the middleware verified for the request.
func FromContext(ctx context.Context) (core.Credentials, bool) {
	v, ok := ctx.Value(contextKey{}).(core.Credentials)
	return v, ok
}

// WithIdentity stores c on ctx the way Middleware does.
func WithIdentity(ctx context.Context, c core.Credentials) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// CredentialsFromRequest reads the identity headers of r. Requests without
// an email header fall back to the email, encryptionSecret and UUID query
// parameters.
func CredentialsFromRequest(r *http.Request) core.Credentials {
	if r.Header.Get(HeaderEmail) == "" {
		q := r.URL.Query()
		return core.Credentials{
			Email:            strings.TrimSpace(q.Get("email")),
			EncryptionSecret: q.Get("encryptionSecret"),
			UUID:             strings.TrimSpace(q.Get("UUID")),
		}
	}
	return core.Credentials{
		Email:            strings.TrimSpace(r.Header.Get(HeaderEmail)),
		EncryptionSecret: r.Header.Get(HeaderEncryptionSecret),
		UUID:             strings.TrimSpace(r.Header.Get(HeaderUUID)),
	}
}

// Middleware rejects requests whose identity headers are missing (400) or do
// not match the registry (401).
func Middleware(reg *Registry) func(http.Handler) http.Handler {
	if reg == nil {
		reg = defaultRegistry()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := CredentialsFromRequest(r)
			if err := reg.Verify(creds); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), creds)))
		})
	}
}

// WriteError writes the plain-text rejection for a Verify error.
func WriteError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrMissingIdentity) {
		http.Error(w, "Invalid credentials", http.StatusBadRequest)
		return
	}
	http.Error(w, "Invalid credentials", http.StatusUnauthorized)
}
