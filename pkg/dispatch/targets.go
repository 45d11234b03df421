package dispatch

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/fleetgate/fleetgate/pkg/inventory"
)

// UnknownTargetError reports a target term that resolved to nothing
// under strict matching.
type UnknownTargetError struct {
	Term string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("target %q matches no host or group", e.Term)
}

// resolveTargets expands a target spec against the inventory. A spec is
// a comma-separated list of terms; each term is a literal host name, a
// group name, or a glob pattern over host names. A leading "!" negates
// the term, removing its matches from the set built so far. Hosts keep
// first-seen order and never repeat.
func resolveTargets(src inventory.Source, spec string, strict bool) ([]*inventory.Host, error) {
	var ordered []*inventory.Host
	seen := make(map[string]struct{})

	add := func(h *inventory.Host) {
		if _, ok := seen[h.Name]; ok {
			return
		}
		seen[h.Name] = struct{}{}
		ordered = append(ordered, h)
	}
	remove := func(name string) {
		if _, ok := seen[name]; !ok {
			return
		}
		delete(seen, name)
		for i, h := range ordered {
			if h.Name == name {
				ordered = append(ordered[:i], ordered[i+1:]...)
				break
			}
		}
	}

	for _, term := range strings.Split(spec, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		negate := strings.HasPrefix(term, "!")
		if negate {
			term = strings.TrimSpace(term[1:])
		}

		matches, err := matchTerm(src, term)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 && strict {
			return nil, &UnknownTargetError{Term: term}
		}

		for _, h := range matches {
			if negate {
				remove(h.Name)
			} else {
				add(h)
			}
		}
	}
	return ordered, nil
}

// matchTerm resolves one term: exact host, then group, then glob.
func matchTerm(src inventory.Source, term string) ([]*inventory.Host, error) {
	if h, ok := src.ResolveHost(term); ok {
		return []*inventory.Host{h}, nil
	}
	if g, ok := src.ResolveGroup(term); ok {
		hosts := make([]*inventory.Host, 0, len(g.Hosts))
		for _, name := range g.Hosts {
			h, ok := src.ResolveHost(name)
			if !ok {
				return nil, fmt.Errorf("group %q references unknown host %q", term, name)
			}
			hosts = append(hosts, h)
		}
		return hosts, nil
	}

	if !strings.ContainsAny(term, "*?[{") {
		return nil, nil
	}
	pattern, err := glob.Compile(term)
	if err != nil {
		return nil, fmt.Errorf("invalid target pattern %q: %w", term, err)
	}
	var hosts []*inventory.Host
	for _, name := range src.HostNames() {
		if !pattern.Match(name) {
			continue
		}
		if h, ok := src.ResolveHost(name); ok {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}

// isSingleLiteral reports whether the spec names exactly one host with
// no grouping, globbing, or negation.
func isSingleLiteral(src inventory.Source, spec string) bool {
	term := strings.TrimSpace(spec)
	if term == "" || strings.Contains(term, ",") || strings.HasPrefix(term, "!") {
		return false
	}
	if strings.ContainsAny(term, "*?[{") {
		return false
	}
	_, ok := src.ResolveHost(term)
	return ok
}
