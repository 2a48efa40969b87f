package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mirkwood-lang/mirkwood/internal/errors"
	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

// DefaultAlwaysAllow lists resolvers that skip the entity check
var DefaultAlwaysAllow = []string{"user.me"}

// Policy configures the entity check that follows the ACL
type Policy struct {
	// Enabled turns the entity check on
	Enabled bool

	// AnonymousExempt resolvers skip the entity check for anonymous callers
	AnonymousExempt []string

	// Bypass resolvers skip the entity check for everyone
	Bypass []string

	// AlwaysAllow resolvers pass the entity check with no allow-list, like
	// relation traversals do
	AlwaysAllow []string
}

// Target is the resolver being called
type Target struct {
	Model string
	Field string

	// Traversal marks a relation field resolved from its parent row
	Traversal bool

	// Args are the field arguments. An "_id" argument names the entity.
	Args map[string]interface{}
}

// Name returns the fully qualified resolver name
func (t Target) Name() string {
	return ResolverName(t.Model, t.Field)
}

// Gate checks targets against the ACL and the entity policy
type Gate struct {
	acl    ACL
	policy Policy
	logger *zap.Logger
}

// Option configures a Gate
type Option func(*Gate)

// WithPolicy sets the entity policy
func WithPolicy(p Policy) Option {
	return func(g *Gate) {
		g.policy = p
	}
}

// WithLogger sets the logger used for denials
func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate creates a gate over the given ACL
func NewGate(acl ACL, opts ...Option) *Gate {
	g := &Gate{
		acl:    acl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.policy.AlwaysAllow == nil {
		g.policy.AlwaysAllow = DefaultAlwaysAllow
	}
	return g
}

// Check decides whether the identity on ctx may call target. On success it
// returns a context that carries the entity allow-list when one applies and
// drops any list inherited from an enclosing field otherwise.
func (g *Gate) Check(ctx context.Context, target Target) (context.Context, error) {
	if webcontext.IsTrusted(ctx) {
		return ctx, nil
	}

	id := IdentityFrom(ctx)
	if id.Err != nil {
		return ctx, id.Err
	}

	role := id.Role
	if role == "" {
		role = Anonymous
	}
	name := target.Name()

	allowed, _ := g.acl.Allows(role, name)
	if !allowed {
		g.deny(ctx, name, role, "acl")
		if role == Anonymous {
			return ctx, errors.AuthenticationRequired()
		}
		return ctx, errors.Forbidden()
	}

	if !g.policy.Enabled || g.exempt(target, role) {
		return webcontext.ClearAllowedEntities(ctx), nil
	}

	entities, ok := g.entities(id, name)
	if !ok {
		g.deny(ctx, name, role, "no permission")
		return ctx, errors.Forbidden()
	}
	if entities == nil {
		return webcontext.ClearAllowedEntities(ctx), nil
	}

	if requested, ok := requestedEntity(target.Args); ok && !contains(entities, requested) {
		g.deny(ctx, name, role, "entity")
		return ctx, errors.Forbidden().WithData("entity", requested)
	}

	return webcontext.SetAllowedEntities(ctx, entities), nil
}

func (g *Gate) exempt(target Target, role string) bool {
	name := target.Name()
	switch {
	case target.Traversal:
		return true
	case matchAny(g.policy.Bypass, name), matchAny(g.policy.AlwaysAllow, name):
		return true
	case role == Anonymous && matchAny(g.policy.AnonymousExempt, name):
		return true
	}
	return false
}

// entities collects the user's allow-list for a resolver. A nil list with
// ok true means every entity is allowed.
func (g *Gate) entities(id *Identity, name string) ([]string, bool) {
	var out []string
	found := false
	for _, p := range id.Permissions {
		if !p.Allows(name) {
			continue
		}
		found = true
		for _, e := range p.Entities {
			if e == Wildcard {
				return nil, true
			}
			if !contains(out, e) {
				out = append(out, e)
			}
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, found
}

func (g *Gate) deny(ctx context.Context, name, role, reason string) {
	g.logger.Debug("resolver denied",
		zap.String("request_id", webcontext.GetRequestID(ctx)),
		zap.String("resolver", name),
		zap.String("role", role),
		zap.String("reason", reason))
}

func requestedEntity(args map[string]interface{}) (string, bool) {
	v, ok := args["_id"]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}
