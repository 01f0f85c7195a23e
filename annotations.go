package rbac

import (
	"fmt"
	"sync"
)

// Annotations are the declarative markers the guard consults for a route.
// An empty Resource means the route declares none.
type Annotations struct {
	Public    bool     `json:"public,omitempty"`
	SkipGuard bool     `json:"skipGuard,omitempty"`
	Resource  Resource `json:"resource,omitempty"`
}

type routeEntry struct {
	group string
	ann   Annotations
}

// RouteTable maps route identifiers to annotations. It is filled while
// routes are registered at startup and only read afterwards.
//
// Route ids are free-form; the fiber adapter uses whatever id the route was
// registered with and the GraphQL adapter uses "<Object>.<field>".
type RouteTable struct {
	mu     sync.RWMutex
	groups map[string]Annotations
	routes map[string]routeEntry
}

func NewRouteTable() *RouteTable {
	return &RouteTable{
		groups: make(map[string]Annotations),
		routes: make(map[string]routeEntry),
	}
}

// Group declares group-level annotations shared by the routes registered
// under name. It may be called before or after those routes.
func (t *RouteTable) Group(name string, ann Annotations) *RouteTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups[name] = ann
	return t
}

// Handle declares route-level annotations. Registering the same id twice panics.
func (t *RouteTable) Handle(routeID, group string, ann Annotations) *RouteTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, dup := t.routes[routeID]; dup {
		panic(fmt.Sprintf("rbac: route %q registered twice", routeID))
	}
	t.routes[routeID] = routeEntry{group: group, ann: ann}
	return t
}

// Lookup returns the effective annotations of routeID. The route level is
// more specific than its group: a route resource replaces the group one,
// and either level can mark the route public or skipped.
func (t *RouteTable) Lookup(routeID string) (Annotations, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.routes[routeID]
	if !ok {
		return Annotations{}, false
	}
	group := t.groups[entry.group]

	ann := entry.ann
	ann.Public = ann.Public || group.Public
	ann.SkipGuard = ann.SkipGuard || group.SkipGuard
	if ann.Resource == "" {
		ann.Resource = group.Resource
	}
	return ann, true
}
