package auth

import (
	"context"

	"github.com/mirkwood-lang/mirkwood/internal/web/session"
)

type contextKey int

const identityKey contextKey = iota

// Identity is who the current request acts as
type Identity struct {
	Role        string
	User        string
	Permissions []Entry

	// Err is set when a bearer credential was presented but rejected. The
	// gate reports it on the first checked field.
	Err error
}

// AnonymousIdentity is the identity of a request with no credentials
func AnonymousIdentity() *Identity {
	return &Identity{Role: Anonymous}
}

// IsAnonymous reports whether the identity carries the anonymous role
func (i *Identity) IsAnonymous() bool {
	return i == nil || i.Role == "" || i.Role == Anonymous
}

// WithIdentity attaches the identity to the context
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity on the context. Without one it falls
// back to the session, then to anonymous.
func IdentityFrom(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityKey).(*Identity); ok && id != nil {
		return id
	}
	if sess := session.GetSession(ctx); sess != nil {
		if id := FromSession(sess); id != nil {
			return id
		}
	}
	return AnonymousIdentity()
}

// FromSession reads the identity held by an authenticated session
func FromSession(sess *session.Session) *Identity {
	if sess == nil || sess.Auth == nil {
		return nil
	}
	id := &Identity{Role: sess.Auth.Role, User: sess.Auth.User}
	for _, p := range sess.Auth.Permissions {
		id.Permissions = append(id.Permissions, Entry{Resolvers: p.Resolvers, Entities: p.Entities})
	}
	return id
}

// Authenticate stores the identity on the request session
func Authenticate(ctx context.Context, id Identity) error {
	sess := session.GetSession(ctx)
	if sess == nil {
		return session.ErrSessionNotFound
	}
	auth := &session.Auth{Role: id.Role, User: id.User}
	for _, p := range id.Permissions {
		auth.Permissions = append(auth.Permissions, session.Permission{Resolvers: p.Resolvers, Entities: p.Entities})
	}
	sess.Auth = auth
	return nil
}

// Unauthenticate drops the identity held by the request session
func Unauthenticate(ctx context.Context) error {
	sess := session.GetSession(ctx)
	if sess == nil {
		return session.ErrSessionNotFound
	}
	sess.Auth = nil
	return nil
}
