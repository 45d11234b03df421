package builtin

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// File ensures a path is in the requested state: "touch" (exists as a
// regular file), "directory", or "absent". Mode is an octal string like
// "0644". The result reports whether anything changed, which makes the
// action safe to rerun.
func File(_ context.Context, params map[string]any, check bool) (map[string]any, error) {
	path, err := requireString(params, "path")
	if err != nil {
		return nil, err
	}
	state := stringParam(params, "state", "touch")

	var mode os.FileMode = 0o644
	if m := stringParam(params, "mode", ""); m != "" {
		parsed, err := strconv.ParseUint(m, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid mode %q: %w", m, err)
		}
		mode = os.FileMode(parsed)
	}

	info, statErr := os.Stat(path)
	exists := statErr == nil

	switch state {
	case "touch":
		if exists && !info.IsDir() {
			return map[string]any{"changed": false, "path": path, "state": state}, nil
		}
		if exists {
			return nil, fmt.Errorf("%s exists and is a directory", path)
		}
		if check {
			return map[string]any{"changed": true, "path": path, "state": state, "skipped": true}, nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, mode)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		return map[string]any{"changed": true, "path": path, "state": state}, nil

	case "directory":
		if exists && info.IsDir() {
			return map[string]any{"changed": false, "path": path, "state": state}, nil
		}
		if exists {
			return nil, fmt.Errorf("%s exists and is not a directory", path)
		}
		if check {
			return map[string]any{"changed": true, "path": path, "state": state, "skipped": true}, nil
		}
		if err := os.MkdirAll(path, mode|0o100); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", path, err)
		}
		return map[string]any{"changed": true, "path": path, "state": state}, nil

	case "absent":
		if !exists {
			return map[string]any{"changed": false, "path": path, "state": state}, nil
		}
		if check {
			return map[string]any{"changed": true, "path": path, "state": state, "skipped": true}, nil
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove %s: %w", path, err)
		}
		return map[string]any{"changed": true, "path": path, "state": state}, nil

	default:
		return nil, fmt.Errorf("unknown state %q", state)
	}
}
