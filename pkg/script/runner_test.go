package script

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/dispatch"
	"github.com/fleetgate/fleetgate/pkg/inventory"
	"github.com/fleetgate/fleetgate/pkg/secrets"
	"github.com/fleetgate/fleetgate/pkg/store"
	"github.com/fleetgate/fleetgate/pkg/transport"
)

type localFactory struct{ ch *transport.Local }

func (f *localFactory) Channel(*inventory.Host) (transport.Channel, error) { return f.ch, nil }

func newTestRunner(t *testing.T) (*Runner, *inventory.Table, *store.Store) {
	t.Helper()

	registry := actions.NewRegistry()
	err := registry.Register("ping", actions.Func(func(_ context.Context, params map[string]any, _ bool) (map[string]any, error) {
		out := map[string]any{"pong": true}
		if data, ok := params["data"]; ok {
			out["data"] = data
		}
		return out, nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	inv, err := inventory.NewTable([]*inventory.Host{inventory.Localhost()}, nil)
	if err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "state.json"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	d, err := dispatch.New(dispatch.Deps{
		Source:   inv,
		Channels: &localFactory{ch: transport.NewLocal(registry)},
		Registry: registry,
		Bindings: secrets.NewBindings(),
		Secrets:  secrets.StaticSource{},
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	return NewRunner(d, inv, st, dispatch.Options{}, zerolog.Nop()), inv, st
}

func TestRunScript(t *testing.T) {
	r, _, _ := newTestRunner(t)

	globals, err := r.Run(context.Background(), "test.star", []byte(`
res = run("ping", "localhost", params={"data": "hello"})
ok = not res["failed"]
pong = res["hosts"]["localhost"]["payload"]["pong"]
`))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if globals["ok"] != true {
		t.Errorf("ok = %v", globals["ok"])
	}
	if globals["pong"] != true {
		t.Errorf("pong = %v", globals["pong"])
	}
	res, ok := globals["res"].(map[string]any)
	if !ok {
		t.Fatalf("res = %T", globals["res"])
	}
	if res["run_id"] == "" {
		t.Error("run_id missing from script result")
	}
}

func TestScriptStateBridge(t *testing.T) {
	r, _, st := newTestRunner(t)

	globals, err := r.Run(context.Background(), "state.star", []byte(`
state_add("vm-1", {"cpu": 4})
present = state_has("vm-1")
attrs = state_get("vm-1")
state_remove("vm-1")
gone = not state_has("vm-1")
`))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if globals["present"] != true || globals["gone"] != true {
		t.Errorf("present = %v, gone = %v", globals["present"], globals["gone"])
	}
	attrs, ok := globals["attrs"].(map[string]any)
	if !ok || attrs["cpu"] != int64(4) {
		t.Errorf("attrs = %#v", globals["attrs"])
	}
	if st.Has("vm-1") {
		t.Error("resource survived state_remove")
	}
}

func TestScriptAddHost(t *testing.T) {
	r, inv, _ := newTestRunner(t)

	_, err := r.Run(context.Background(), "hosts.star", []byte(`
add_host("web9", address="10.0.0.9", user="deploy", groups=["web"])
res = run("ping", "web", params=None)
`))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	h, ok := inv.ResolveHost("web9")
	if !ok {
		t.Fatal("web9 not registered")
	}
	if h.Address != "10.0.0.9" || h.User != "deploy" {
		t.Errorf("host = %+v", h)
	}
	if g, ok := inv.ResolveGroup("web"); !ok || len(g.Hosts) != 1 {
		t.Errorf("group = %+v", g)
	}
}

func TestScriptErrorsSurface(t *testing.T) {
	r, _, _ := newTestRunner(t)

	if _, err := r.Run(context.Background(), "bad.star", []byte(`state_get("missing")`)); err == nil {
		t.Error("missing resource lookup did not fail the script")
	}
	if _, err := r.Run(context.Background(), "syntax.star", []byte(`def broken(`)); err == nil {
		t.Error("syntax error did not fail the script")
	}
}

func TestRunFileMissing(t *testing.T) {
	r, _, _ := newTestRunner(t)
	if _, err := r.RunFile(context.Background(), "/does/not/exist.star"); err == nil {
		t.Error("missing script file did not error")
	}
}
