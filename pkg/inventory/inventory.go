// Package inventory holds the resolved host and group model the
// dispatcher executes against. Parsing inventory files and merging
// variables happens upstream; this package consumes an already-resolved
// table and supports dynamic host registration during a run.
package inventory

// Host is a concrete execution target. A Host is immutable once a run
// that references it has started.
type Host struct {
	// Name is the inventory identity, distinct from the address.
	Name string `yaml:"name" json:"name"`

	// Address is the connection endpoint. Empty for local hosts.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`
	Port    int    `yaml:"port,omitempty" json:"port,omitempty"`
	User    string `yaml:"user,omitempty" json:"user,omitempty"`

	// KeyPath references the SSH private key credential.
	KeyPath string `yaml:"key_path,omitempty" json:"key_path,omitempty"`

	// Interpreter launches the gate runtime on the remote side.
	// Defaults to /bin/sh when empty.
	Interpreter string `yaml:"interpreter,omitempty" json:"interpreter,omitempty"`

	// Local marks a host executed in-process with no transport.
	Local bool `yaml:"local,omitempty" json:"local,omitempty"`

	// Groups lists memberships in inventory order.
	Groups []string `yaml:"groups,omitempty" json:"groups,omitempty"`

	// Vars are host variables, already merged by the inventory provider.
	Vars map[string]any `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// SSHPort returns the configured port or the SSH default.
func (h *Host) SSHPort() int {
	if h.Port > 0 {
		return h.Port
	}
	return 22
}

// Group is a named set of hosts with shared variables. Group variables
// sit below host variables in the overlay precedence.
type Group struct {
	Name  string         `yaml:"name" json:"name"`
	Hosts []string       `yaml:"hosts" json:"hosts"`
	Vars  map[string]any `yaml:"vars,omitempty" json:"vars,omitempty"`
}

// Source is the resolved-inventory contract the dispatcher consumes.
type Source interface {
	// ResolveHost returns the host for a literal name.
	ResolveHost(name string) (*Host, bool)
	// ResolveGroup returns the group for a name.
	ResolveGroup(name string) (*Group, bool)
	// HostNames returns all host names in deterministic inventory order.
	HostNames() []string
}
