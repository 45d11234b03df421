package gate

import (
	"fmt"
	"os"
)

// Runtime supplies the entry-point payload embedded in every bundle.
// Its version participates in the content hash, so upgrading the
// runtime invalidates cached bundles everywhere at once.
type Runtime interface {
	Version() string
	Payload() ([]byte, error)
}

// BinaryRuntime reads a prebuilt gate-runner binary for the target
// platform. The binary is produced out of band; see BuildCommand.
type BinaryRuntime struct {
	Path    string
	version string
}

// NewBinaryRuntime creates a runtime backed by a binary on disk.
func NewBinaryRuntime(path, version string) *BinaryRuntime {
	return &BinaryRuntime{Path: path, version: version}
}

// Version implements Runtime.
func (r *BinaryRuntime) Version() string { return r.version }

// Payload implements Runtime.
func (r *BinaryRuntime) Payload() ([]byte, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, &BuildError{
			Reason: fmt.Sprintf("gate-runner binary not found at %s, build with: %s",
				r.Path, BuildCommand("linux", "amd64", r.Path)),
			Err: err,
		}
	}
	return data, nil
}

// BuildCommand returns the command that produces a gate-runner binary
// for the given target platform.
func BuildCommand(goos, goarch, outputPath string) string {
	return fmt.Sprintf("CGO_ENABLED=0 GOOS=%s GOARCH=%s go build -ldflags='-s -w' -o %s ./cmd/gate-runner",
		goos, goarch, outputPath)
}

// StaticRuntime holds its payload in memory. Used by tests and by
// callers that embed a prebuilt runner.
type StaticRuntime struct {
	Ver  string
	Data []byte
}

// Version implements Runtime.
func (r *StaticRuntime) Version() string { return r.Ver }

// Payload implements Runtime.
func (r *StaticRuntime) Payload() ([]byte, error) { return r.Data, nil }
