package inventory

import (
	"fmt"
	"sync"
)

// Table is an in-memory Source. It is seeded from resolved inventory at
// startup and may grow through AddHost while a run provisions new
// machines; mutation and lookup are safe from concurrent goroutines.
type Table struct {
	mu     sync.RWMutex
	hosts  map[string]*Host
	groups map[string]*Group
	order  []string
}

// NewTable creates a table from resolved hosts and groups.
func NewTable(hosts []*Host, groups []*Group) (*Table, error) {
	t := &Table{
		hosts:  make(map[string]*Host, len(hosts)),
		groups: make(map[string]*Group, len(groups)),
	}
	for _, h := range hosts {
		if err := t.AddHost(h); err != nil {
			return nil, err
		}
	}
	for _, g := range groups {
		if _, ok := t.groups[g.Name]; ok {
			return nil, fmt.Errorf("duplicate group %q", g.Name)
		}
		t.groups[g.Name] = g
	}
	return t, nil
}

// AddHost registers a dynamically discovered host. Adding a name that
// already exists is an error: hosts are immutable once known.
func (t *Table) AddHost(h *Host) error {
	if h.Name == "" {
		return fmt.Errorf("host has no name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.hosts[h.Name]; ok {
		return fmt.Errorf("duplicate host %q", h.Name)
	}
	t.hosts[h.Name] = h
	t.order = append(t.order, h.Name)
	for _, gname := range h.Groups {
		g, ok := t.groups[gname]
		if !ok {
			g = &Group{Name: gname}
			t.groups[gname] = g
		}
		if !contains(g.Hosts, h.Name) {
			g.Hosts = append(g.Hosts, h.Name)
		}
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// ResolveHost implements Source.
func (t *Table) ResolveHost(name string) (*Host, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.hosts[name]
	return h, ok
}

// ResolveGroup implements Source.
func (t *Table) ResolveGroup(name string) (*Group, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[name]
	return g, ok
}

// HostNames implements Source; order is insertion order, which keeps
// result sets deterministic across identical runs.
func (t *Table) HostNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Localhost returns the implicit local host used when a target spec
// names "local" or "localhost" without inventory backing.
func Localhost() *Host {
	return &Host{Name: "localhost", Local: true}
}
