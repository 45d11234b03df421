package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func newEngine(t *testing.T, allowDestructive bool) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), Options{AllowDestructive: allowDestructive}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestBlockedCommands(t *testing.T) {
	e := newEngine(t, true) // override must not matter

	tests := []struct {
		name string
		cmd  string
	}{
		{"rm root", "rm -rf /"},
		{"rm root glob", "rm -rf /*"},
		{"fork bomb", ":(){ :|:& };:"},
		{"dd raw disk", "dd if=/dev/zero of=/dev/sda bs=1M"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Check(context.Background(), "command", map[string]any{"cmd": tt.cmd})
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if !d.Blocked || d.Allowed {
				t.Errorf("decision = %+v, want blocked", d)
			}
			if d.Reason == "" {
				t.Error("blocked decision has no reason")
			}
		})
	}
}

func TestDestructiveCommands(t *testing.T) {
	ctx := context.Background()
	strict := newEngine(t, false)
	permissive := newEngine(t, true)

	tests := []struct {
		name string
		cmd  string
	}{
		{"rm force", "rm -rf /opt/app"},
		{"mkfs", "mkfs.ext4 /dev/sdb1"},
		{"shutdown", "shutdown -h now"},
		{"sql drop", "mysql -e 'DROP DATABASE prod'"},
		{"git hard reset", "git reset --hard origin/main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := map[string]any{"cmd": tt.cmd}

			d, err := strict.Check(ctx, "command", params)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if d.Allowed || d.Blocked {
				t.Errorf("strict decision = %+v, want denied but not blocked", d)
			}
			if len(d.Warnings) == 0 {
				t.Error("denied decision has no warnings")
			}

			d, err = permissive.Check(ctx, "command", params)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if !d.Allowed {
				t.Errorf("override decision = %+v, want allowed", d)
			}
		})
	}
}

func TestSafePathExemption(t *testing.T) {
	e := newEngine(t, false)

	d, err := e.Check(context.Background(), "command", map[string]any{"cmd": "rm -rf /tmp/build-artifacts"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.Allowed {
		t.Errorf("scratch path removal denied: %+v", d)
	}
}

func TestHarmlessCommands(t *testing.T) {
	e := newEngine(t, false)
	ctx := context.Background()

	for _, cmd := range []string{"echo hello", "ls -la /var/log", "systemctl status nginx"} {
		d, err := e.Check(ctx, "command", map[string]any{"cmd": cmd})
		if err != nil {
			t.Fatalf("Check(%q) error = %v", cmd, err)
		}
		if !d.Allowed || len(d.Warnings) != 0 {
			t.Errorf("Check(%q) = %+v, want clean allow", cmd, d)
		}
	}
}

func TestQualifiedActionName(t *testing.T) {
	e := newEngine(t, false)

	d, err := e.Check(context.Background(), "fleetgate.builtin.command", map[string]any{"cmd": "rm -rf /opt/app"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.Allowed {
		t.Error("qualified action name bypassed the rules")
	}
}

func TestFileRemoval(t *testing.T) {
	e := newEngine(t, false)
	ctx := context.Background()

	d, _ := e.Check(ctx, "file", map[string]any{"state": "absent", "path": "/etc/ssh/sshd_config"})
	if d.Allowed {
		t.Errorf("system file removal allowed: %+v", d)
	}

	d, _ = e.Check(ctx, "file", map[string]any{"state": "absent", "path": "/tmp/scratch.txt"})
	if !d.Allowed {
		t.Errorf("scratch file removal denied: %+v", d)
	}

	d, _ = e.Check(ctx, "file", map[string]any{"state": "touch", "path": "/etc/motd"})
	if !d.Allowed {
		t.Errorf("non-removal file state denied: %+v", d)
	}
}

func TestNonCommandActionsPass(t *testing.T) {
	e := newEngine(t, false)

	d, err := e.Check(context.Background(), "ping", map[string]any{"data": "hi"})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.Allowed {
		t.Errorf("ping denied: %+v", d)
	}
}
