package inventory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	doc := `
groups:
  - name: web
    vars:
      port: 8080
hosts:
  - name: web1
    address: 10.0.0.1
    user: deploy
    groups: [web]
  - name: web2
    address: 10.0.0.2
    groups: [web]
  - name: localhost
    local: true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	h, ok := table.ResolveHost("web1")
	if !ok || h.Address != "10.0.0.1" || h.User != "deploy" {
		t.Errorf("web1 = %+v", h)
	}
	if lh, ok := table.ResolveHost("localhost"); !ok || !lh.Local {
		t.Errorf("localhost = %+v", lh)
	}

	g, ok := table.ResolveGroup("web")
	if !ok {
		t.Fatal("group web missing")
	}
	if len(g.Hosts) != 2 {
		t.Errorf("group hosts = %v", g.Hosts)
	}
	if g.Vars["port"] != 8080 {
		t.Errorf("group vars = %v", g.Vars)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file did not error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("hosts: {not: a list}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("malformed document did not error")
	}
}
