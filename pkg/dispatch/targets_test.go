package dispatch

import (
	"errors"
	"testing"

	"github.com/fleetgate/fleetgate/pkg/inventory"
)

func testInventory(t *testing.T) *inventory.Table {
	t.Helper()
	table, err := inventory.NewTable([]*inventory.Host{
		{Name: "web1", Address: "10.0.0.1", Groups: []string{"web"}},
		{Name: "web2", Address: "10.0.0.2", Groups: []string{"web"}},
		{Name: "db1", Address: "10.0.1.1", Groups: []string{"db"}},
		{Name: "localhost", Local: true},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func names(hosts []*inventory.Host) []string {
	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = h.Name
	}
	return out
}

func TestResolveTargets(t *testing.T) {
	inv := testInventory(t)

	tests := []struct {
		name string
		spec string
		want []string
	}{
		{"literal host", "web1", []string{"web1"}},
		{"group", "web", []string{"web1", "web2"}},
		{"glob", "web*", []string{"web1", "web2"}},
		{"union", "db1,web1", []string{"db1", "web1"}},
		{"union dedup keeps first-seen order", "web,web1", []string{"web1", "web2"}},
		{"negation", "web,!web2", []string{"web1"}},
		{"negation of glob", "*,!db*", []string{"web1", "web2", "localhost"}},
		{"unknown term lenient", "ghost", nil},
		{"empty terms skipped", "web1,,  ,db1", []string{"web1", "db1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveTargets(inv, tt.spec, false)
			if err != nil {
				t.Fatalf("resolveTargets(%q) error = %v", tt.spec, err)
			}
			gotNames := names(got)
			if len(gotNames) != len(tt.want) {
				t.Fatalf("resolveTargets(%q) = %v, want %v", tt.spec, gotNames, tt.want)
			}
			for i := range tt.want {
				if gotNames[i] != tt.want[i] {
					t.Fatalf("resolveTargets(%q) = %v, want %v", tt.spec, gotNames, tt.want)
				}
			}
		})
	}
}

func TestResolveTargetsStrict(t *testing.T) {
	inv := testInventory(t)

	_, err := resolveTargets(inv, "ghost", true)
	var ute *UnknownTargetError
	if !errors.As(err, &ute) {
		t.Fatalf("strict resolve error = %v, want UnknownTargetError", err)
	}
	if ute.Term != "ghost" {
		t.Errorf("Term = %q", ute.Term)
	}

	// A glob matching nothing is also strict-unknown.
	if _, err := resolveTargets(inv, "mail*", true); err == nil {
		t.Error("strict glob with no matches did not error")
	}
}

func TestResolveTargetsBadPattern(t *testing.T) {
	inv := testInventory(t)
	if _, err := resolveTargets(inv, "web[", false); err == nil {
		t.Error("invalid pattern did not error")
	}
}

func TestIsSingleLiteral(t *testing.T) {
	inv := testInventory(t)

	tests := []struct {
		spec string
		want bool
	}{
		{"web1", true},
		{"localhost", true},
		{"web", false},  // group
		{"web*", false}, // glob
		{"web1,web2", false},
		{"!web1", false},
		{"ghost", false},
	}
	for _, tt := range tests {
		if got := isSingleLiteral(inv, tt.spec); got != tt.want {
			t.Errorf("isSingleLiteral(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}
