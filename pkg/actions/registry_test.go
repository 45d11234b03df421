package actions

import (
	"context"
	"errors"
	"testing"
)

func noop(_ context.Context, _ map[string]any, _ bool) (map[string]any, error) {
	return map[string]any{}, nil
}

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("ping", Func(noop)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("acme.cloud.instance", Func(noop)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "short builtin name", id: "ping"},
		{name: "fully-qualified builtin name", id: "fleetgate.builtin.ping"},
		{name: "foreign FQN", id: "acme.cloud.instance"},
		{name: "unknown short name", id: "reboot", wantErr: true},
		{name: "unknown FQN", id: "acme.cloud.volume", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("Resolve(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if tt.wantErr {
				var nf *NotFoundError
				if !errors.As(err, &nf) {
					t.Errorf("Resolve(%q) error = %v, want NotFoundError", tt.id, err)
				}
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("ping", Func(noop)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// The short and fully-qualified forms are the same identifier.
	err := r.Register("fleetgate.builtin.ping", Func(noop))
	var re *RegistrationError
	if !errors.As(err, &re) {
		t.Errorf("duplicate Register() error = %v, want RegistrationError", err)
	}
}

func TestSecretParams(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("uri", Func(noop), WithSecretParams("bearer_token", "url_password")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	set := r.SecretParams("uri")
	if _, ok := set["bearer_token"]; !ok {
		t.Error("bearer_token not declared secret")
	}
	if _, ok := set["url"]; ok {
		t.Error("url unexpectedly declared secret")
	}

	// Same declaration visible under the fully-qualified name.
	if set := r.SecretParams("fleetgate.builtin.uri"); len(set) != 2 {
		t.Errorf("SecretParams(FQN) = %d names, want 2", len(set))
	}

	// Unknown identifiers yield an empty set, not an error.
	if set := r.SecretParams("nope"); len(set) != 0 {
		t.Errorf("SecretParams(unknown) = %v, want empty", set)
	}
}

func TestSource(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("ping", Func(noop)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("deploy", Func(noop), WithSource([]byte("#!/bin/sh\necho hi\n"))); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	src, err := r.Source("ping")
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if string(src) != "builtin:fleetgate.builtin.ping" {
		t.Errorf("synthesized source = %q", src)
	}

	src, err = r.Source("deploy")
	if err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if string(src) != "#!/bin/sh\necho hi\n" {
		t.Errorf("explicit source = %q", src)
	}

	if _, err := r.Source("nope"); err == nil {
		t.Error("Source(unknown) succeeded, want error")
	}
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{id: "ping", want: "fleetgate.builtin.ping"},
		{id: "fleetgate.builtin.ping", want: "fleetgate.builtin.ping"},
		{id: "acme.cloud.instance", want: "acme.cloud.instance"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.id); got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}
