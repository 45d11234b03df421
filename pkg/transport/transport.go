// Package transport defines the execution-channel contract shared by
// the in-process channel and the remote SSH channel, and the result
// shape both produce.
//
// A channel executes one request against one host. Whatever goes wrong
// — down to a completely unreachable machine — the outcome is a Result
// attributed to that host, so a failing host never disappears from
// aggregate output.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetgate/fleetgate/pkg/inventory"
)

// Error kinds attached to failed results. They mirror the error
// taxonomy: connection-level failures, remote runtime failures, and
// per-request action failures are distinguishable by the caller.
const (
	KindActionNotFound  = "ActionNotFound"
	KindActionError     = "ActionError"
	KindConnectionError = "ConnectionError"
	KindRemoteExecution = "RemoteExecutionError"
	KindProtocolError   = "ProtocolError"
	KindFramingError    = "FramingError"
	KindBuildError      = "BuildError"
	KindSecretNotFound  = "SecretNotFound"
)

// Request is one action invocation against one host, carrying both the
// effective (post-injection) parameters handed to the action and the
// original parameters retained for audit.
type Request struct {
	Host           *inventory.Host
	ActionID       string
	Params         map[string]any
	OriginalParams map[string]any
	Check          bool
}

// Result is the attributable outcome of one request.
type Result struct {
	Host      string         `json:"host"`
	Success   bool           `json:"success"`
	Payload   map[string]any `json:"payload,omitempty"`
	ErrKind   string         `json:"err_kind,omitempty"`
	ErrMsg    string         `json:"err_msg,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// Duration returns the wall-clock execution time.
func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Err returns nil for successful results and a descriptive error
// otherwise.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%s on %s: %s", r.ErrKind, r.Host, r.ErrMsg)
}

// Channel executes requests against hosts. Implementations reuse
// per-host sessions across sequential requests within a run and must be
// safe for concurrent use across different hosts.
type Channel interface {
	Execute(ctx context.Context, req *Request) *Result
	Close() error
}

// ConnectionError indicates a remote session could not be established:
// network unreachable, authentication rejected, host key mismatch. It
// is attributed to a single host and never propagates to siblings.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteExecutionError indicates the remote gate runtime misbehaved:
// non-zero exit, unexpected verb, or a protocol violation.
type RemoteExecutionError struct {
	Host string
	Err  error
}

func (e *RemoteExecutionError) Error() string {
	return fmt.Sprintf("remote execution on %s: %v", e.Host, e.Err)
}

func (e *RemoteExecutionError) Unwrap() error { return e.Err }
