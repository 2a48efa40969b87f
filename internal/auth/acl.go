// Package auth decides whether the current identity may run a resolver.
//
// Two checks run in order. The role ACL names the resolvers a role may call.
// When identity and access management is enabled, the user's own
// permissions then name the entities each resolver may touch.
package auth

import "strings"

// Anonymous is the role of a request without a session identity or token
const Anonymous = "anonymous"

// Wildcard matches every resolver, or every entity
const Wildcard = "*"

// ACL maps a role to the resolver patterns it may call. A pattern is a full
// resolver name such as "order.one", a model wildcard "order.*", or "*".
type ACL map[string][]string

// Allows reports whether role may call the named resolver. The second
// result is false when the role has no ACL entry at all.
func (a ACL) Allows(role, name string) (allowed, known bool) {
	patterns, ok := a[role]
	if !ok {
		return false, false
	}
	return matchAny(patterns, name), true
}

// Entry is one permission held by a user: the resolvers it covers and the
// entities those resolvers may touch
type Entry struct {
	Resolvers []string `json:"resolvers" mapstructure:"resolvers"`
	Entities  []string `json:"entities" mapstructure:"entities"`
}

// Allows reports whether the entry covers the named resolver
func (e Entry) Allows(name string) bool {
	return matchAny(e.Resolvers, name)
}

// ResolverName is the fully qualified name checked against the ACL. Without
// a model it is the bare field name.
func ResolverName(model, field string) string {
	if model == "" {
		return field
	}
	return model + "." + field
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if match(p, name) {
			return true
		}
	}
	return false
}

func match(pattern, name string) bool {
	switch {
	case pattern == Wildcard, pattern == name:
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
