package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Pkg ensures a package is present or absent using the first package
// manager found on the system (apt-get, dnf, yum, zypper, apk).
func Pkg(ctx context.Context, params map[string]any, check bool) (map[string]any, error) {
	name, err := requireString(params, "name")
	if err != nil {
		return nil, err
	}
	state := stringParam(params, "state", "present")
	if state != "present" && state != "absent" {
		return nil, fmt.Errorf("unknown state %q", state)
	}

	manager := stringParam(params, "manager", "")
	if manager == "" {
		manager = detectManager()
	}
	if manager == "" {
		return nil, fmt.Errorf("no supported package manager found")
	}

	installed, err := pkgInstalled(ctx, manager, name)
	if err != nil {
		return nil, err
	}

	changed := (state == "present" && !installed) || (state == "absent" && installed)
	out := map[string]any{"name": name, "state": state, "manager": manager, "changed": changed}
	if !changed {
		return out, nil
	}
	if check {
		out["skipped"] = true
		return out, nil
	}

	args := installArgs(manager, name, state == "absent")
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %s", args[0], firstLine(stderr.String()))
	}
	return out, nil
}

func detectManager() string {
	for _, m := range []string{"apt-get", "dnf", "yum", "zypper", "apk"} {
		if _, err := exec.LookPath(m); err == nil {
			return m
		}
	}
	return ""
}

func pkgInstalled(ctx context.Context, manager, name string) (bool, error) {
	var cmd *exec.Cmd
	switch manager {
	case "apt-get":
		cmd = exec.CommandContext(ctx, "dpkg-query", "-W", "-f=${Status}", name)
	case "dnf", "yum", "zypper":
		cmd = exec.CommandContext(ctx, "rpm", "-q", name)
	case "apk":
		cmd = exec.CommandContext(ctx, "apk", "info", "-e", name)
	default:
		return false, fmt.Errorf("unsupported package manager %q", manager)
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return false, nil
	}
	if manager == "apt-get" {
		return bytes.Contains(stdout.Bytes(), []byte("install ok installed")), nil
	}
	return true, nil
}

func installArgs(manager, name string, remove bool) []string {
	verb := "install"
	if remove {
		verb = "remove"
	}
	switch manager {
	case "apt-get":
		return []string{"apt-get", "-y", verb, name}
	case "dnf", "yum":
		return []string{manager, "-y", verb, name}
	case "zypper":
		return []string{"zypper", "--non-interactive", verb, name}
	case "apk":
		if remove {
			return []string{"apk", "del", name}
		}
		return []string{"apk", "add", name}
	}
	return nil
}
