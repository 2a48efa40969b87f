package middleware

import (
	"net/http"
	"strings"

	"github.com/mirkwood-lang/mirkwood/internal/auth"
)

// Identity reads a bearer token from the Authorization header and attaches
// the identity it carries. Requests without a bearer token fall through to
// the session identity. A rejected token does not fail the request: the
// identity is anonymous with Err set and the gate reports the error on the
// first checked field.
func Identity(issuer *auth.Issuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok || issuer == nil {
				next.ServeHTTP(w, r)
				return
			}

			id, err := issuer.Parse(token)
			if err != nil {
				id = auth.AnonymousIdentity()
				id.Err = err
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
