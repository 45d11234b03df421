// Package builtin provides the action catalog shipped with fleetgate:
// small, idempotent operations for files, packages, services, commands,
// and HTTP probes. Each action runs identically in-process on the
// controller and inside a gate runtime on a remote host.
package builtin

import (
	"fmt"

	"github.com/fleetgate/fleetgate/pkg/actions"
)

// RegisterAll installs the builtin catalog into a registry. It is called
// once at startup by both the controller and the gate runtime, so the
// two sides agree on identifiers and secret-parameter declarations.
func RegisterAll(r *actions.Registry) error {
	regs := []struct {
		id   string
		impl actions.Action
		opts []actions.RegisterOption
	}{
		{id: "ping", impl: actions.Func(Ping)},
		{id: "command", impl: actions.Func(Command)},
		{id: "file", impl: actions.Func(File)},
		{id: "copy", impl: actions.Func(Copy)},
		{id: "service", impl: actions.Func(Service)},
		{id: "pkg", impl: actions.Func(Pkg)},
		{
			id:   "uri",
			impl: actions.Func(URI),
			opts: []actions.RegisterOption{actions.WithSecretParams("bearer_token", "url_password")},
		},
	}

	for _, reg := range regs {
		if err := r.Register(reg.id, reg.impl, reg.opts...); err != nil {
			return fmt.Errorf("register builtin %q: %w", reg.id, err)
		}
	}
	return nil
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return def
}

func boolParam(params map[string]any, key string, def bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return def
}

func requireString(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("parameter %q is required", key)
	}
	return v, nil
}
