// Package script runs Starlark automation scripts against the
// dispatcher and the state store. Scripts orchestrate multi-step
// workflows that a single action invocation cannot express: run an
// action, inspect its results, branch, record state.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/fleetgate/fleetgate/pkg/dispatch"
	"github.com/fleetgate/fleetgate/pkg/inventory"
	"github.com/fleetgate/fleetgate/pkg/store"
)

// Runner executes automation scripts.
type Runner struct {
	dispatcher *dispatch.Dispatcher
	inventory  *inventory.Table
	store      *store.Store
	opts       dispatch.Options
	log        zerolog.Logger
}

// NewRunner creates a runner. opts are the dispatch defaults every
// run() call inherits; a script can still set check per call.
func NewRunner(dispatcher *dispatch.Dispatcher, inv *inventory.Table, st *store.Store, opts dispatch.Options, log zerolog.Logger) *Runner {
	return &Runner{
		dispatcher: dispatcher,
		inventory:  inv,
		store:      st,
		opts:       opts,
		log:        log.With().Str("component", "script-runner").Logger(),
	}
}

// RunFile executes the script at path. The script's global namespace is
// returned for callers that inspect results.
func (r *Runner) RunFile(ctx context.Context, path string) (map[string]any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return r.Run(ctx, path, src)
}

// Run executes script source under the given name.
func (r *Runner) Run(ctx context.Context, name string, src []byte) (map[string]any, error) {
	thread := &starlark.Thread{
		Name: "fleetgate",
		Print: func(_ *starlark.Thread, msg string) {
			r.log.Info().Str("script", name).Msg(msg)
		},
	}

	// Propagate context cancellation into the interpreter.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-stop:
		}
	}()

	predeclared := starlark.StringDict{
		"struct":       starlarkstruct.Default,
		"run":          starlark.NewBuiltin("run", r.builtinRun(ctx)),
		"add_host":     starlark.NewBuiltin("add_host", r.builtinAddHost),
		"state_has":    starlark.NewBuiltin("state_has", r.builtinStateHas),
		"state_get":    starlark.NewBuiltin("state_get", r.builtinStateGet),
		"state_add":    starlark.NewBuiltin("state_add", r.builtinStateAdd),
		"state_remove": starlark.NewBuiltin("state_remove", r.builtinStateRemove),
	}

	globals, err := starlark.ExecFile(thread, name, src, predeclared)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("script %s failed: %s", name, evalErr.Backtrace())
		}
		return nil, fmt.Errorf("script %s failed: %w", name, err)
	}

	out := make(map[string]any)
	for gname, val := range globals {
		if len(gname) > 0 && gname[0] == '_' {
			continue
		}
		gv, err := fromStarlark(val)
		if err != nil {
			// Functions and other non-data globals are skipped.
			continue
		}
		out[gname] = gv
	}
	return out, nil
}

// builtinRun implements run(action, target, params=None, check=False).
// It returns a dict: run_id, failed, and hosts mapping each host name
// to its outcome.
func (r *Runner) builtinRun(ctx context.Context) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			action, target string
			paramsArg      starlark.Value
			check          bool
		)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"action", &action, "target", &target, "params?", &paramsArg, "check?", &check); err != nil {
			return nil, err
		}
		params, err := dictFromParams(paramsArg)
		if err != nil {
			return nil, err
		}

		opts := r.opts
		opts.Check = opts.Check || check

		report, err := r.dispatcher.Execute(ctx, action, target, params, opts)
		if err != nil {
			return nil, err
		}

		hosts := map[string]any{}
		for _, res := range report.Results {
			outcome := map[string]any{"success": res.Success}
			if len(res.Payload) > 0 {
				outcome["payload"] = res.Payload
			}
			if !res.Success {
				outcome["err_kind"] = res.ErrKind
				outcome["err_msg"] = res.ErrMsg
			}
			hosts[res.Host] = outcome
		}
		return toStarlark(map[string]any{
			"run_id": report.RunID,
			"failed": report.Failed,
			"hosts":  hosts,
		})
	}
}

// builtinAddHost implements
// add_host(name, address=None, user=None, port=0, groups=[], local=False).
func (r *Runner) builtinAddHost(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name, address, user string
		port                int
		groupsArg           *starlark.List
		local               bool
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"name", &name, "address?", &address, "user?", &user, "port?", &port, "groups?", &groupsArg, "local?", &local); err != nil {
		return nil, err
	}

	var groups []string
	if groupsArg != nil {
		for i := 0; i < groupsArg.Len(); i++ {
			s, ok := starlark.AsString(groupsArg.Index(i))
			if !ok {
				return nil, fmt.Errorf("add_host: group names must be strings")
			}
			groups = append(groups, s)
		}
	}

	host := &inventory.Host{
		Name:    name,
		Address: address,
		User:    user,
		Port:    port,
		Groups:  groups,
		Local:   local,
	}
	if err := r.inventory.AddHost(host); err != nil {
		return nil, fmt.Errorf("add_host: %w", err)
	}
	r.log.Debug().Str("host", name).Msg("host registered by script")
	return starlark.None, nil
}

func (r *Runner) builtinStateHas(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	return starlark.Bool(r.store.Has(name)), nil
}

func (r *Runner) builtinStateGet(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	attrs, err := r.store.Get(name)
	if err != nil {
		return nil, fmt.Errorf("state_get: %w", err)
	}
	return toStarlark(attrs)
}

func (r *Runner) builtinStateAdd(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		name     string
		attrsArg starlark.Value
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "attrs?", &attrsArg); err != nil {
		return nil, err
	}
	attrs, err := dictFromParams(attrsArg)
	if err != nil {
		return nil, err
	}
	if err := r.store.Add(name, attrs); err != nil {
		return nil, fmt.Errorf("state_add: %w", err)
	}
	return starlark.None, nil
}

func (r *Runner) builtinStateRemove(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	if err := r.store.Remove(name); err != nil {
		return nil, fmt.Errorf("state_remove: %w", err)
	}
	return starlark.None, nil
}
