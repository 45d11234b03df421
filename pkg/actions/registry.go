// Package actions defines the action contract and the registry that maps
// short or fully-qualified identifiers to implementations.
//
// An action is a named, idempotent operation with a parameter object and
// a structured result payload. Actions are registered once at process
// start; the registry is read-only afterwards, so lookups are safe from
// any goroutine without locking.
package actions

import (
	"context"
	"fmt"
	"strings"
)

// BuiltinNamespace is the namespace short action names resolve under.
const BuiltinNamespace = "fleetgate.builtin"

// Action is the single capability every automation operation exposes.
// Implementations decide themselves how to honor check mode.
type Action interface {
	Invoke(ctx context.Context, params map[string]any, check bool) (map[string]any, error)
}

// Func adapts a plain function to the Action interface.
type Func func(ctx context.Context, params map[string]any, check bool) (map[string]any, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, params map[string]any, check bool) (map[string]any, error) {
	return f(ctx, params, check)
}

type entry struct {
	impl         Action
	secretParams map[string]struct{}
	source       []byte
}

// Registry maps action identifiers to implementations, declared
// secret-parameter names, and implementation content for bundle hashing.
type Registry struct {
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// RegisterOption configures a registration.
type RegisterOption func(*entry)

// WithSecretParams declares parameter names eligible for secret
// injection. Values bound to these names are redacted in audit entries.
func WithSecretParams(names ...string) RegisterOption {
	return func(e *entry) {
		for _, n := range names {
			e.secretParams[n] = struct{}{}
		}
	}
}

// WithSource attaches the implementation content used for bundle
// hashing. Actions without explicit source get a stable synthesized
// descriptor derived from their canonical identifier.
func WithSource(content []byte) RegisterOption {
	return func(e *entry) { e.source = content }
}

// Register adds an action under id, which may be a short name (qualified
// into the builtin namespace) or a fully-qualified name. It fails with a
// RegistrationError if the canonical identifier already exists.
func (r *Registry) Register(id string, impl Action, opts ...RegisterOption) error {
	if id == "" {
		return fmt.Errorf("action identifier is empty")
	}
	if impl == nil {
		return fmt.Errorf("action %q has no implementation", id)
	}

	fqn := Canonical(id)
	if _, ok := r.entries[fqn]; ok {
		return &RegistrationError{ID: fqn}
	}

	e := &entry{impl: impl, secretParams: make(map[string]struct{})}
	for _, opt := range opts {
		opt(e)
	}
	if e.source == nil {
		e.source = []byte("builtin:" + fqn)
	}
	r.entries[fqn] = e
	return nil
}

// Resolve returns the implementation for a short or fully-qualified
// identifier, or a NotFoundError.
func (r *Registry) Resolve(id string) (Action, error) {
	e, ok := r.entries[Canonical(id)]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return e.impl, nil
}

// SecretParams returns the declared secret-eligible parameter names for
// an identifier. Unknown identifiers yield an empty set, not an error.
func (r *Registry) SecretParams(id string) map[string]struct{} {
	e, ok := r.entries[Canonical(id)]
	if !ok {
		return nil
	}
	return e.secretParams
}

// Source returns the implementation content bytes for bundle hashing.
func (r *Registry) Source(id string) ([]byte, error) {
	e, ok := r.entries[Canonical(id)]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return e.source, nil
}

// IDs returns all canonical identifiers in unspecified order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Canonical maps a short name into the builtin namespace and returns
// fully-qualified names unchanged. Secret bindings registered under
// either form of a builtin action's name apply to both: callers compare
// canonical identifiers.
func Canonical(id string) string {
	if strings.Contains(id, ".") {
		return id
	}
	return BuiltinNamespace + "." + id
}

// ShortName returns the final segment of an identifier.
func ShortName(id string) string {
	if i := strings.LastIndex(id, "."); i >= 0 {
		return id[i+1:]
	}
	return id
}
