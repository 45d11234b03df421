// Package policy evaluates actions against safety rules before they
// are dispatched. The rules live in an embedded Rego module: blocked
// commands can never run, destructive commands require an explicit
// override, and operations confined to scratch paths are exempt.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/fleetgate/fleetgate/pkg/actions"
)

//go:embed rules.rego
var rulesSource string

// safePathPrefixes mirror the Rego module's safe_paths for the checks
// evaluated in Go.
var safePathPrefixes = []string{"/tmp/", "/var/tmp/", "/dev/shm/"}

// Decision is the outcome of a safety check.
type Decision struct {
	// Allowed reports whether the action may proceed.
	Allowed bool
	// Blocked means the action can never proceed, override or not.
	Blocked bool
	// Reason names the blocking rule when Blocked.
	Reason string
	// Warnings describe destructive behavior that an override permits.
	Warnings []string
}

// Options configure the engine.
type Options struct {
	// AllowDestructive permits destructive (but not blocked) commands.
	AllowDestructive bool
}

// Engine evaluates the embedded safety rules.
type Engine struct {
	query rego.PreparedEvalQuery
	opts  Options
	log   zerolog.Logger
}

// NewEngine compiles the embedded rules.
func NewEngine(ctx context.Context, opts Options, log zerolog.Logger) (*Engine, error) {
	query, err := rego.New(
		rego.Query("data.fleetgate.safety"),
		rego.Module("rules.rego", rulesSource),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile safety rules: %w", err)
	}
	return &Engine{
		query: query,
		opts:  opts,
		log:   log.With().Str("component", "safety-policy").Logger(),
	}, nil
}

// Check evaluates one action invocation. Actions without safety rules
// are always allowed.
func (e *Engine) Check(ctx context.Context, actionID string, params map[string]any) (*Decision, error) {
	d := &Decision{Allowed: true}

	switch actions.ShortName(actionID) {
	case "command", "shell", "script":
		cmd, _ := params["cmd"].(string)
		if cmd == "" {
			return d, nil
		}
		if err := e.checkCommand(ctx, cmd, d); err != nil {
			return nil, err
		}
	case "file":
		checkFileRemoval(params, d)
	}

	if d.Blocked {
		d.Allowed = false
		e.log.Warn().Str("action", actionID).Str("reason", d.Reason).Msg("action blocked")
		return d, nil
	}
	if len(d.Warnings) > 0 && !e.opts.AllowDestructive {
		d.Allowed = false
		e.log.Warn().Str("action", actionID).Strs("warnings", d.Warnings).Msg("destructive action denied without override")
	}
	return d, nil
}

func (e *Engine) checkCommand(ctx context.Context, cmd string, d *Decision) error {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]any{"cmd": cmd}))
	if err != nil {
		return fmt.Errorf("evaluate safety rules: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("safety rules produced no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected safety rule result %T", rs[0].Expressions[0].Value)
	}

	if blocked, ok := doc["blocked"].([]any); ok && len(blocked) > 0 {
		d.Blocked = true
		d.Reason, _ = blocked[0].(string)
		return nil
	}
	if warnings, ok := doc["warnings"].([]any); ok {
		for _, w := range warnings {
			if s, ok := w.(string); ok {
				d.Warnings = append(d.Warnings, s)
			}
		}
	}
	return nil
}

// checkFileRemoval flags removal of files outside scratch paths when
// the target sits in a system location.
func checkFileRemoval(params map[string]any, d *Decision) {
	state, _ := params["state"].(string)
	path, _ := params["path"].(string)
	if state != "absent" || path == "" {
		return
	}
	for _, safe := range safePathPrefixes {
		if strings.HasPrefix(path, safe) {
			return
		}
	}
	if path == "/" || strings.HasPrefix(path, "/etc/") || strings.HasPrefix(path, "/usr/") {
		d.Warnings = append(d.Warnings, "Removing file/directory: "+path)
	}
}

// FormatDenial renders a denied decision for terminal output.
func FormatDenial(d *Decision, actionID string) string {
	if d.Blocked {
		return fmt.Sprintf("Command blocked for safety: %s\nThis command cannot be executed.", d.Reason)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Destructive command detected in action %q:\n\n", actionID)
	for _, w := range d.Warnings {
		fmt.Fprintf(&b, "  - %s\n", w)
	}
	b.WriteString("\nUse --allow-destructive to run this command.")
	return b.String()
}
