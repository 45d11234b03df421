package secrets

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	b := NewBindings()
	b.Bind("uri", "bearer_token", "API_TOKEN")

	src := StaticSource{"API_TOKEN": "secret123"}

	got, err := b.Resolve("uri", src)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got["bearer_token"] != "secret123" {
		t.Errorf("bearer_token = %v", got["bearer_token"])
	}
}

func TestShortAndQualifiedNamesShareBindings(t *testing.T) {
	src := StaticSource{"API_TOKEN": "secret123"}

	// Bound under the short name, resolved under the FQN.
	b := NewBindings()
	b.Bind("uri", "bearer_token", "API_TOKEN")
	got, err := b.Resolve("fleetgate.builtin.uri", src)
	if err != nil {
		t.Fatalf("Resolve(FQN) error = %v", err)
	}
	if got["bearer_token"] != "secret123" {
		t.Errorf("FQN lookup = %v", got)
	}

	// Bound under the FQN, resolved under the short name.
	b = NewBindings()
	b.Bind("fleetgate.builtin.uri", "bearer_token", "API_TOKEN")
	got, err = b.Resolve("uri", src)
	if err != nil {
		t.Fatalf("Resolve(short) error = %v", err)
	}
	if got["bearer_token"] != "secret123" {
		t.Errorf("short lookup = %v", got)
	}

	// Foreign fully-qualified names match only exactly.
	b = NewBindings()
	b.Bind("acme.cloud.instance", "api_key", "API_TOKEN")
	if rules := b.ForAction("instance"); rules != nil {
		t.Errorf("short name matched foreign FQN binding: %v", rules)
	}
}

func TestResolveMissingKey(t *testing.T) {
	b := NewBindings()
	b.Bind("uri", "bearer_token", "ABSENT_KEY")

	_, err := b.Resolve("uri", StaticSource{})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve() error = %v, want NotFoundError", err)
	}
	if nf.Key != "ABSENT_KEY" {
		t.Errorf("missing key = %q", nf.Key)
	}
}

func TestResolveNoBindings(t *testing.T) {
	b := NewBindings()
	got, err := b.Resolve("ping", StaticSource{})
	if err != nil || got != nil {
		t.Errorf("Resolve() = %v, %v; want nil, nil", got, err)
	}
}
