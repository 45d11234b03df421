package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Service manages a systemd unit. Supported states: "started",
// "stopped", "restarted", "reloaded". The enabled flag toggles the unit
// at boot. Idempotence comes from querying systemctl before acting.
func Service(ctx context.Context, params map[string]any, check bool) (map[string]any, error) {
	name, err := requireString(params, "name")
	if err != nil {
		return nil, err
	}
	state := stringParam(params, "state", "started")

	active, err := unitActive(ctx, name)
	if err != nil {
		return nil, err
	}

	var verb string
	changed := false
	switch state {
	case "started":
		if !active {
			verb, changed = "start", true
		}
	case "stopped":
		if active {
			verb, changed = "stop", true
		}
	case "restarted":
		verb, changed = "restart", true
	case "reloaded":
		verb, changed = "reload", true
	default:
		return nil, fmt.Errorf("unknown state %q", state)
	}

	out := map[string]any{"name": name, "state": state, "changed": changed}
	if check {
		out["skipped"] = true
		return out, nil
	}

	if changed {
		if err := systemctl(ctx, verb, name); err != nil {
			return nil, err
		}
	}

	if v, ok := params["enabled"].(bool); ok {
		enableVerb := "disable"
		if v {
			enableVerb = "enable"
		}
		if err := systemctl(ctx, enableVerb, name); err != nil {
			return nil, err
		}
		out["enabled"] = v
	}
	return out, nil
}

func unitActive(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "is-active", name)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	// is-active exits non-zero for inactive units; that is an answer,
	// not a failure.
	_ = cmd.Run()
	return strings.TrimSpace(stdout.String()) == "active", nil
}

func systemctl(ctx context.Context, verb, name string) error {
	cmd := exec.CommandContext(ctx, "systemctl", verb, name)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s %s: %s", verb, name, firstLine(stderr.String()))
	}
	return nil
}
