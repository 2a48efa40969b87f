// Package executor runs GraphQL documents against a compiled schema.
//
// Documents are parsed and validated with gqlparser against the schema's
// rendered SDL. Execution then walks the compiled type graph: fields with a
// resolver call it, all others read the same-named key off the parent map.
// Fields run one after another, so resolvers never race on the request
// session. A failing field is null in the response and its error carries the
// field path.
package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"

	mwerrors "github.com/mirkwood-lang/mirkwood/internal/errors"
	"github.com/mirkwood-lang/mirkwood/internal/schema"
	"github.com/mirkwood-lang/mirkwood/internal/types"
	webcontext "github.com/mirkwood-lang/mirkwood/internal/web/context"
)

// TypenameField is answered by the executor on every object
const TypenameField = "__typename"

var (
	// ErrNoOperation is returned when the document holds no runnable operation
	ErrNoOperation = errors.New("no operation to execute")

	// ErrSubscriptions is returned for subscription operations
	ErrSubscriptions = errors.New("subscriptions are not supported")
)

// Request is a single GraphQL request
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`

	// Trusted requests bypass the authorization gate
	Trusted bool `json:"-"`
}

// Executor executes requests against one schema
type Executor struct {
	schema *types.Schema
	doc    *ast.Schema
	logger *zap.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New loads the schema's SDL for validation and returns an executor
func New(s *types.Schema, opts ...Option) (*Executor, error) {
	doc, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: s.Render()})
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	e := &Executor{
		schema: s,
		doc:    doc,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Schema returns the executed schema
func (e *Executor) Schema() *types.Schema {
	return e.schema
}

// run is the state of one execution
type run struct {
	exec   *Executor
	doc    *ast.QueryDocument
	vars   map[string]interface{}
	errors gqlerror.List
}

// Execute runs a request. Document and variable errors produce a result
// without data; field errors produce partial data.
func (e *Executor) Execute(ctx context.Context, req Request) *Result {
	doc, errs := gqlparser.LoadQuery(e.doc, req.Query)
	if len(errs) > 0 {
		return &Result{Errors: errs}
	}

	op, err := selectOperation(doc, req.OperationName)
	if err != nil {
		return &Result{Errors: gqlerror.List{gqlerror.Errorf("%s", err.Error())}}
	}

	vars, err := validator.VariableValues(e.doc, op, req.Variables)
	if err != nil {
		var gqlErr *gqlerror.Error
		if errors.As(err, &gqlErr) {
			return &Result{Errors: gqlerror.List{gqlErr}}
		}
		return &Result{Errors: gqlerror.List{gqlerror.Errorf("%s", err.Error())}}
	}

	root := e.schema.QueryType()
	switch op.Operation {
	case ast.Mutation:
		root = e.schema.MutationType()
	case ast.Subscription:
		return &Result{Errors: gqlerror.List{gqlerror.Errorf("%s", ErrSubscriptions.Error())}}
	}
	if root == nil {
		return &Result{Errors: gqlerror.List{gqlerror.Errorf("schema has no %s root", op.Operation)}}
	}

	if req.Trusted {
		ctx = webcontext.SetTrusted(ctx, true)
	}

	r := &run{exec: e, doc: doc, vars: vars}
	data := r.object(ctx, root, op.SelectionSet, nil, nil)
	return &Result{Data: data, Errors: r.errors}
}

func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		op := doc.Operations.ForName(name)
		if op == nil {
			return nil, fmt.Errorf("%w: unknown operation %q", ErrNoOperation, name)
		}
		return op, nil
	}
	switch len(doc.Operations) {
	case 0:
		return nil, ErrNoOperation
	case 1:
		return doc.Operations[0], nil
	default:
		return nil, fmt.Errorf("%w: operationName is required when the document has several", ErrNoOperation)
	}
}

// object executes a selection set against source
func (r *run) object(ctx context.Context, t *types.Type, set ast.SelectionSet, source interface{}, path ast.Path) *Object {
	out := NewObject()
	for _, g := range r.collectFields(t.Name, set, nil, map[string]bool{}) {
		fieldPath := appendPath(path, ast.PathName(g.key))
		out.Set(g.key, r.field(ctx, t, g, source, fieldPath))
	}
	return out
}

func (r *run) field(ctx context.Context, t *types.Type, g *fieldGroup, source interface{}, path ast.Path) interface{} {
	first := g.fields[0]
	if first.Name == TypenameField {
		return t.Name
	}

	def := t.Field(first.Name)
	if def == nil {
		r.fail(first, path, fmt.Errorf("cannot query field %q on type %q", first.Name, t.Name))
		return nil
	}

	args, err := r.arguments(def, first)
	if err != nil {
		r.fail(first, path, err)
		return nil
	}

	var value interface{}
	if def.Resolve != nil {
		value, err = def.Resolve(ctx, schema.ResolveParams{
			Source: source,
			Args:   args,
			Field:  def.Name,
			Path:   pathValues(path),
		})
		if err != nil {
			r.fail(first, path, err)
			return nil
		}
	} else {
		value = read(source, def.Name)
	}

	if b, ok := value.(schema.Branch); ok {
		if b.Context != nil {
			ctx = b.Context
		}
		value = b.Value
	}

	return r.complete(ctx, def.Type, g, value, path)
}

// complete shapes a resolved value after its declared type
func (r *run) complete(ctx context.Context, h schema.Handle, g *fieldGroup, value interface{}, path ast.Path) interface{} {
	if value == nil {
		return nil
	}
	reg := r.exec.schema.Registry
	t := reg.Type(h)

	switch t.Kind {
	case types.KindList:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			r.fail(g.fields[0], path, fmt.Errorf("expected a list for %s, got %T", reg.TypeName(h), value))
			return nil
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = r.complete(ctx, t.Elem, g, rv.Index(i).Interface(), appendPath(path, ast.PathIndex(i)))
		}
		return out

	case types.KindScalar, types.KindEnum:
		v, err := serialize(t, value)
		if err != nil {
			r.fail(g.fields[0], path, err)
			return nil
		}
		return v

	case types.KindObject:
		if b, ok := value.(schema.Branch); ok {
			if b.Context != nil {
				ctx = b.Context
			}
			value = b.Value
			if value == nil {
				return nil
			}
		}
		var set ast.SelectionSet
		for _, f := range g.fields {
			set = append(set, f.SelectionSet...)
		}
		return r.object(ctx, t, set, value, path)
	}

	r.fail(g.fields[0], path, fmt.Errorf("cannot complete %s", reg.TypeName(h)))
	return nil
}

// read returns the key of a map source
func read(source interface{}, name string) interface{} {
	switch s := source.(type) {
	case map[string]interface{}:
		return s[name]
	case *Object:
		v, _ := s.Get(name)
		return v
	}
	return nil
}

// fail records a field error. Recognized errors carry their code and data
// under extensions.
func (r *run) fail(f *ast.Field, path ast.Path, err error) {
	gqlErr := &gqlerror.Error{
		Message: err.Error(),
		Path:    path,
	}
	if f.Position != nil {
		gqlErr.Locations = []gqlerror.Location{{Line: f.Position.Line, Column: f.Position.Column}}
	}
	var e *mwerrors.Error
	if errors.As(err, &e) {
		gqlErr.Message = e.Message
		gqlErr.Extensions = map[string]interface{}{"name": string(e.Code)}
		if len(e.Data) > 0 {
			gqlErr.Extensions["data"] = e.Data
		}
	}
	r.exec.logger.Debug("field failed", zap.String("path", path.String()), zap.Error(err))
	r.errors = append(r.errors, gqlErr)
}

func appendPath(path ast.Path, el ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, el)
}

func pathValues(path ast.Path) []interface{} {
	out := make([]interface{}, len(path))
	for i, el := range path {
		switch v := el.(type) {
		case ast.PathName:
			out[i] = string(v)
		case ast.PathIndex:
			out[i] = int(v)
		}
	}
	return out
}
