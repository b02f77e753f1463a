// Package router implements the gateway's route table: an ordered set
// of declarative route rules matched first-wins against incoming
// requests. Rules are configuration data, immutable after startup.
package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shoply/gateway/internal/config"
)

// LocalBackend is the backend name routing to the gateway's own
// handlers instead of a proxied service.
const LocalBackend = "local"

// Middleware names a per-route filter.
type Middleware string

// Per-route middleware names recognized by the gateway.
const (
	// MiddlewareAuth requires a valid, unrevoked bearer token.
	MiddlewareAuth Middleware = "auth"

	// MiddlewareAuthOptional attaches identity when a valid token is
	// present but lets unauthenticated requests through.
	MiddlewareAuthOptional Middleware = "auth-optional"

	// MiddlewareAdmin requires the ADMIN role. It only makes sense
	// after MiddlewareAuth.
	MiddlewareAdmin Middleware = "admin"
)

// Rule is a compiled route rule.
type Rule struct {
	ID          string
	Pattern     *regexp.Regexp
	Methods     []string
	Middlewares []Middleware
	Backend     string
	Rewrite     string
	Headers     map[string]string
}

// Table is the ordered route table. Matching iterates rules in
// declaration order; the first match is authoritative, which is how
// overlapping rules (a public GET rule before a protected catch-all)
// are disambiguated.
type Table struct {
	rules []*Rule
}

// NewTable compiles route configuration into a table.
func NewTable(cfgs []config.RouteConfig) (*Table, error) {
	rules := make([]*Rule, 0, len(cfgs))
	for _, cfg := range cfgs {
		rule, err := compileRule(cfg)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", cfg.ID, err)
		}
		rules = append(rules, rule)
	}
	return &Table{rules: rules}, nil
}

// compileRule compiles a single route rule.
func compileRule(cfg config.RouteConfig) (*Rule, error) {
	pattern, err := regexp.Compile(anchored(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("invalid path pattern: %w", err)
	}

	methods := make([]string, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods = append(methods, strings.ToUpper(m))
	}

	middlewares := make([]Middleware, 0, len(cfg.Middlewares))
	for _, name := range cfg.Middlewares {
		mw := Middleware(name)
		switch mw {
		case MiddlewareAuth, MiddlewareAuthOptional, MiddlewareAdmin:
			middlewares = append(middlewares, mw)
		default:
			return nil, fmt.Errorf("unknown middleware %q", name)
		}
	}

	return &Rule{
		ID:          cfg.ID,
		Pattern:     pattern,
		Methods:     methods,
		Middlewares: middlewares,
		Backend:     cfg.Backend,
		Rewrite:     cfg.Rewrite,
		Headers:     cfg.Headers,
	}, nil
}

// anchored ensures the pattern matches the whole path.
func anchored(pattern string) string {
	if !strings.HasPrefix(pattern, "^") {
		pattern = "^" + pattern
	}
	if !strings.HasSuffix(pattern, "$") {
		pattern += "$"
	}
	return pattern
}

// Match returns the first rule matching the method and path.
func (t *Table) Match(method, path string) (*Rule, bool) {
	for _, rule := range t.rules {
		if !rule.matchesMethod(method) {
			continue
		}
		if rule.Pattern.MatchString(path) {
			return rule, true
		}
	}
	return nil, false
}

// Rules returns the rules in declaration order.
func (t *Table) Rules() []*Rule {
	return t.rules
}

// matchesMethod reports whether the rule accepts the method. An empty
// method set accepts any method.
func (r *Rule) matchesMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// RewritePath applies the rule's rewrite template to the path,
// expanding capture groups such as ${remaining}. An empty template
// leaves the path unchanged.
func (r *Rule) RewritePath(path string) string {
	if r.Rewrite == "" {
		return path
	}
	return r.Pattern.ReplaceAllString(path, r.Rewrite)
}

// RequiresAuth reports whether the rule runs the authentication filter
// with rejection enabled.
func (r *Rule) RequiresAuth() bool {
	for _, mw := range r.Middlewares {
		if mw == MiddlewareAuth {
			return true
		}
	}
	return false
}
