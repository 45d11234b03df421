package inventory

import (
	"reflect"
	"testing"
)

func TestTable(t *testing.T) {
	table, err := NewTable(
		[]*Host{
			{Name: "web01", Address: "10.0.0.1", Groups: []string{"web"}},
			{Name: "web02", Address: "10.0.0.2", Groups: []string{"web"}},
			{Name: "db01", Address: "10.0.1.1", Groups: []string{"db"}},
		},
		[]*Group{{Name: "web", Vars: map[string]any{"http_port": 8080}}},
	)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	h, ok := table.ResolveHost("web01")
	if !ok || h.Address != "10.0.0.1" {
		t.Errorf("ResolveHost(web01) = %+v, %v", h, ok)
	}
	if _, ok := table.ResolveHost("web99"); ok {
		t.Error("ResolveHost(web99) found a host")
	}

	g, ok := table.ResolveGroup("web")
	if !ok {
		t.Fatal("ResolveGroup(web) not found")
	}
	if !reflect.DeepEqual(g.Hosts, []string{"web01", "web02"}) {
		t.Errorf("web members = %v", g.Hosts)
	}
	if g.Vars["http_port"] != 8080 {
		t.Errorf("group vars = %v", g.Vars)
	}

	// The db group was synthesized from host memberships.
	if g, ok := table.ResolveGroup("db"); !ok || len(g.Hosts) != 1 {
		t.Errorf("ResolveGroup(db) = %+v, %v", g, ok)
	}

	if got := table.HostNames(); !reflect.DeepEqual(got, []string{"web01", "web02", "db01"}) {
		t.Errorf("HostNames() = %v", got)
	}
}

func TestTableDynamicAdd(t *testing.T) {
	table, err := NewTable(nil, nil)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}

	if err := table.AddHost(&Host{Name: "worker-1", Address: "192.0.2.9", Groups: []string{"workers"}}); err != nil {
		t.Fatalf("AddHost() error = %v", err)
	}
	if err := table.AddHost(&Host{Name: "worker-1"}); err == nil {
		t.Error("duplicate AddHost() succeeded")
	}

	g, ok := table.ResolveGroup("workers")
	if !ok || len(g.Hosts) != 1 {
		t.Errorf("ResolveGroup(workers) = %+v, %v", g, ok)
	}
}

func TestSSHPortDefault(t *testing.T) {
	h := &Host{Name: "a"}
	if h.SSHPort() != 22 {
		t.Errorf("SSHPort() = %d, want 22", h.SSHPort())
	}
	h.Port = 2222
	if h.SSHPort() != 2222 {
		t.Errorf("SSHPort() = %d, want 2222", h.SSHPort())
	}
}
