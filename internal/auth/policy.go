package auth

import (
	"slices"
	"sync"
)

// Policy maps a route to the roles allowed to call it. Routes are keyed by
// method and router pattern, e.g. "GET /users/{id}".
type Policy struct {
	mu     sync.RWMutex
	routes map[string][]string
}

func NewPolicy() *Policy {
	return &Policy{routes: make(map[string][]string)}
}

// RouteKey builds the key a route is registered under.
func RouteKey(method, pattern string) string {
	return method + " " + pattern
}

// Require records the roles for a route. Calling it again replaces them.
func (p *Policy) Require(method, pattern string, roles ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[RouteKey(method, pattern)] = slices.Clone(roles)
}

// RequiredRoles returns the roles for a route and whether it is protected.
func (p *Policy) RequiredRoles(method, pattern string) ([]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	roles, ok := p.routes[RouteKey(method, pattern)]
	return roles, ok
}
