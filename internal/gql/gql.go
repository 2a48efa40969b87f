// Package gql is the in-process client for the internal schema. Requests
// run trusted, so server-side code reaches every operation regardless of
// the caller's identity.
package gql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mirkwood-lang/mirkwood/internal/executor"
	"github.com/mirkwood-lang/mirkwood/internal/filter"
)

// ErrPathNotFound is returned when the traverse path leaves the response
var ErrPathNotFound = errors.New("path not found in response")

// Executor is the part of the executor the client calls
type Executor interface {
	Execute(ctx context.Context, req executor.Request) *executor.Result
}

// Client runs queries and mutations against the internal schema
type Client struct {
	exec Executor
}

// New creates a client
func New(exec Executor) *Client {
	return &Client{exec: exec}
}

// Query runs `query { <body> }` and returns the value at path, a dotted
// walk into the response data. An empty path returns all data.
func (c *Client) Query(ctx context.Context, body string, path string) (interface{}, error) {
	return c.run(ctx, "query", body, nil, path)
}

// Mutation runs `mutation { <body> }` and returns the value at path
func (c *Client) Mutation(ctx context.Context, body string, path string) (interface{}, error) {
	return c.run(ctx, "mutation", body, nil, path)
}

// Do runs a complete document with variables
func (c *Client) Do(ctx context.Context, document string, variables map[string]interface{}, path string) (interface{}, error) {
	res := c.exec.Execute(ctx, executor.Request{Query: document, Variables: variables, Trusted: true})
	return traverse(res, path)
}

func (c *Client) run(ctx context.Context, operation, body string, variables map[string]interface{}, path string) (interface{}, error) {
	return c.Do(ctx, operation+" { "+body+" }", variables, path)
}

func traverse(res *executor.Result, path string) (interface{}, error) {
	if len(res.Errors) > 0 {
		return nil, res.Errors[0]
	}
	data := res.Data.Map()
	if path == "" {
		return data, nil
	}
	v, ok := filter.Lookup(data, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return v, nil
}

// Encode renders a Go value as a GraphQL input literal. Object keys are
// written unquoted and in sorted order.
func Encode(v interface{}) string {
	var b strings.Builder
	encode(&b, v)
	return b.String()
}

func encode(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(val))
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	case json.Number:
		b.WriteString(val.String())
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			encode(b, item)
		}
		b.WriteByte(']')
	case []string:
		items := make([]interface{}, len(val))
		for i, s := range val {
			items[i] = s
		}
		encode(b, items)
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			encode(b, val[k])
		}
		b.WriteByte('}')
	default:
		b.WriteString(strconv.Quote(fmt.Sprint(val)))
	}
}
