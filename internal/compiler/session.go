package compiler

import (
	"context"
	"errors"

	"github.com/ohler55/ojg/oj"

	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/types"
	"github.com/mirkwood-lang/mirkwood/internal/web/session"
)

// ErrNoSession is returned by the session utilities outside a session
var ErrNoSession = errors.New("no session attached to the request")

// sessionKey namespaces a client key under the model key
func sessionKey(m *schema.Model, args map[string]interface{}) string {
	key, _ := args["key"].(string)
	return m.Key + key
}

func requireSession(ctx context.Context) (*session.Session, error) {
	sess := session.GetSession(ctx)
	if sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (u *unit) keyArg() *types.Arg {
	return &types.Arg{Name: "key", Type: u.scalar(schema.ScalarString), Default: ""}
}

func (c *Compiler) sessionRead(u *unit, name, resolverName string, typ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		sess, err := requireSession(ctx)
		if err != nil {
			return nil, err
		}
		v, _ := sess.Get(sessionKey(u.model, p.Args))
		return v, nil
	}
	return &types.Field{
		Name:        name,
		Type:        typ,
		Args:        []*types.Arg{u.keyArg()},
		Description: "Read a value stored in the session",
		Resolve:     c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) sessionReadKV(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		sess, err := requireSession(ctx)
		if err != nil {
			return nil, err
		}
		v, ok := sess.Get(sessionKey(u.model, p.Args))
		if !ok || v == nil {
			return nil, nil
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return oj.JSON(v), nil
	}
	return &types.Field{
		Name:    name,
		Type:    u.scalar(schema.ScalarString),
		Args:    []*types.Arg{u.keyArg()},
		Resolve: c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) sessionExists(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		sess, err := requireSession(ctx)
		if err != nil {
			return nil, err
		}
		v, ok := sess.Get(sessionKey(u.model, p.Args))
		return ok && v != nil, nil
	}
	return &types.Field{
		Name:    name,
		Type:    u.scalar(schema.ScalarBoolean),
		Args:    []*types.Arg{u.keyArg()},
		Resolve: c.wrap(resolverName, fn),
	}, nil
}

func (c *Compiler) sessionWrite(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	return c.sessionSetter(u, name, resolverName, u.input), nil
}

func (c *Compiler) sessionWriteKV(u *unit, name, resolverName string, _ schema.Handle) (*types.Field, error) {
	return c.sessionSetter(u, name, resolverName, u.scalar(schema.ScalarString)), nil
}

func (c *Compiler) sessionSetter(u *unit, name, resolverName string, value schema.Handle) *types.Field {
	fn := func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
		sess, err := requireSession(ctx)
		if err != nil {
			return nil, err
		}
		sess.Set(sessionKey(u.model, p.Args), p.Args["value"])
		return true, nil
	}
	return &types.Field{
		Name:    name,
		Type:    u.scalar(schema.ScalarBoolean),
		Args:    []*types.Arg{u.keyArg(), {Name: "value", Type: value}},
		Resolve: c.wrap(resolverName, fn),
	}
}
