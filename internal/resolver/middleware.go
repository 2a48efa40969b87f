package resolver

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/mirkwood-lang/mirkwood/internal/auth"
	"github.com/mirkwood-lang/mirkwood/internal/errors"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

// Checker authorizes a resolver call. *auth.Gate implements it.
type Checker interface {
	Check(ctx context.Context, target auth.Target) (context.Context, error)
}

// Auth runs the checker before the resolver body. The model is taken from
// the branch context; name is the resolver name, e.g. "database.one".
func Auth(c Checker, name string) Middleware {
	return func(next schema.ResolveFunc) schema.ResolveFunc {
		return func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
			ctx, err := c.Check(ctx, auth.Target{
				Model: webcontext.GetModel(ctx),
				Field: name,
				Args:  p.Args,
			})
			if err != nil {
				return nil, err
			}
			return next(ctx, p)
		}
	}
}

// Traverse authorizes a relation field of model. Traversals are checked
// against the ACL but skip the entity check.
func Traverse(c Checker, model, name string) Middleware {
	return func(next schema.ResolveFunc) schema.ResolveFunc {
		return func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
			ctx, err := c.Check(ctx, auth.Target{
				Model:     model,
				Field:     name,
				Traversal: true,
				Args:      p.Args,
			})
			if err != nil {
				return nil, err
			}
			return next(ctx, p)
		}
	}
}

// Normalize hides unrecognized errors in production. The original error is
// logged so that it is not lost.
func Normalize(production bool, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next schema.ResolveFunc) schema.ResolveFunc {
		return func(ctx context.Context, p schema.ResolveParams) (interface{}, error) {
			v, err := next(ctx, p)
			if err == nil {
				return v, nil
			}
			if production && !errors.IsRecognized(err) {
				logger.Error("resolver failed",
					zap.String("request_id", webcontext.GetRequestID(ctx)),
					zap.String("field", p.Field),
					zap.Error(err))
			}
			return nil, errors.Normalize(err, production)
		}
	}
}

// Recover turns a panic in the resolver body into an error
func Recover(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next schema.ResolveFunc) schema.ResolveFunc {
		return func(ctx context.Context, p schema.ResolveParams) (v interface{}, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("resolver panic",
						zap.String("request_id", webcontext.GetRequestID(ctx)),
						zap.String("field", p.Field),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()))
					v, err = nil, fmt.Errorf("panic in resolver %s: %v", p.Field, r)
				}
			}()
			return next(ctx, p)
		}
	}
}
