package transport

import (
	"context"
	"errors"
	"time"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/telemetry"
)

// Local executes actions directly in the calling process: no network,
// no bundle, same result shape as the remote channel.
type Local struct {
	registry *actions.Registry
}

// NewLocal creates the in-process channel.
func NewLocal(registry *actions.Registry) *Local {
	return &Local{registry: registry}
}

// Execute implements Channel. Failures are logged through the
// run-scoped logger the dispatcher attaches to ctx.
func (l *Local) Execute(ctx context.Context, req *Request) *Result {
	res := &Result{Host: req.Host.Name, StartedAt: time.Now().UTC()}

	impl, err := l.registry.Resolve(req.ActionID)
	if err != nil {
		res.EndedAt = time.Now().UTC()
		res.ErrKind = KindActionNotFound
		res.ErrMsg = err.Error()
		return res
	}

	payload, err := impl.Invoke(ctx, req.Params, req.Check)
	res.EndedAt = time.Now().UTC()
	res.Payload = payload
	if err != nil {
		var nf *actions.NotFoundError
		if errors.As(err, &nf) {
			res.ErrKind = KindActionNotFound
		} else {
			res.ErrKind = KindActionError
		}
		res.ErrMsg = err.Error()
		log := telemetry.FromContext(ctx)
		log.Debug().Str("host", req.Host.Name).Str("action", req.ActionID).Err(err).Msg("action failed")
		return res
	}

	res.Success = true
	return res
}

// Close implements Channel. The local channel holds no resources.
func (l *Local) Close() error { return nil }
