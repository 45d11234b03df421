// Package secrets resolves declarative secret bindings at call time.
//
// A binding maps an action identifier to parameter names and lookup
// keys; the dispatcher overlays resolved values into the effective
// parameters just below explicit call parameters. Raw secret values are
// never persisted: the audit recorder redacts any parameter declared
// secret by the action.
package secrets

import (
	"fmt"
	"os"

	"github.com/fleetgate/fleetgate/pkg/actions"
)

// Source is a lookup-only secret backend.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource resolves secret keys from process environment variables.
type EnvSource struct{}

// Lookup implements Source.
func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// StaticSource is a fixed map, used in tests and scripts.
type StaticSource map[string]string

// Lookup implements Source.
func (s StaticSource) Lookup(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// NotFoundError indicates a binding referenced a key the source does
// not hold. The affected request fails; other hosts are unaffected.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret %q not found in source", e.Key)
}

// Bindings maps canonical action identifiers to parameter-name →
// lookup-key rules. A binding registered under a builtin action's short
// name applies when the action is invoked by its fully-qualified name
// and vice versa; bindings on foreign names match exactly.
type Bindings struct {
	rules map[string]map[string]string
}

// NewBindings creates an empty binding set.
func NewBindings() *Bindings {
	return &Bindings{rules: make(map[string]map[string]string)}
}

// Bind registers a parameter → lookup-key rule for an action.
func (b *Bindings) Bind(actionID, param, key string) {
	fqn := actions.Canonical(actionID)
	if b.rules[fqn] == nil {
		b.rules[fqn] = make(map[string]string)
	}
	b.rules[fqn][param] = key
}

// ForAction returns the binding rules for an action identifier, nil if
// none are registered.
func (b *Bindings) ForAction(actionID string) map[string]string {
	return b.rules[actions.Canonical(actionID)]
}

// Resolve looks up every bound parameter for an action against the
// source. It fails with NotFoundError on the first missing key.
func (b *Bindings) Resolve(actionID string, src Source) (map[string]any, error) {
	rules := b.ForAction(actionID)
	if len(rules) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(rules))
	for param, key := range rules {
		v, ok := src.Lookup(key)
		if !ok {
			return nil, &NotFoundError{Key: key}
		}
		out[param] = v
	}
	return out, nil
}
