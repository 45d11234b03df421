package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Command runs a shell command and captures its output. Unlike the
// other builtins it is not idempotent by construction; callers decide
// when rerunning is safe. In check mode nothing is executed.
func Command(ctx context.Context, params map[string]any, check bool) (map[string]any, error) {
	cmdline, err := requireString(params, "cmd")
	if err != nil {
		return nil, err
	}

	shell := stringParam(params, "shell", "/bin/sh")
	workDir := stringParam(params, "chdir", "")

	if check {
		return map[string]any{"changed": false, "skipped": true, "cmd": cmdline}, nil
	}

	cmd := exec.CommandContext(ctx, shell, "-c", cmdline)
	if workDir != "" {
		cmd.Dir = workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	rc := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			rc = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("start command: %w", runErr)
		}
	}

	out := map[string]any{
		"changed": true,
		"rc":      rc,
		"stdout":  stdout.String(),
		"stderr":  stderr.String(),
	}
	if rc != 0 && !boolParam(params, "ignore_errors", false) {
		return out, fmt.Errorf("command exited with rc=%d: %s", rc, firstLine(stderr.String()))
	}
	return out, nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
