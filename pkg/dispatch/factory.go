package dispatch

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/gate"
	"github.com/fleetgate/fleetgate/pkg/inventory"
	"github.com/fleetgate/fleetgate/pkg/telemetry"
	"github.com/fleetgate/fleetgate/pkg/transport"
	sshchannel "github.com/fleetgate/fleetgate/pkg/transport/ssh"
)

// Factory is the default channel factory: local hosts share one
// in-process channel, every remote host gets a cached SSH channel that
// is reused across requests within the factory's lifetime.
type Factory struct {
	registry  *actions.Registry
	builder   *gate.Builder
	sshConfig sshchannel.Config
	actionIDs []string
	metrics   *telemetry.Metrics
	log       zerolog.Logger

	mu     sync.Mutex
	local  *transport.Local
	remote map[string]*sshchannel.Channel
}

// NewFactory creates the default factory. actionIDs is the action set
// baked into remote gate bundles; metrics may be nil.
func NewFactory(registry *actions.Registry, builder *gate.Builder, sshConfig sshchannel.Config, actionIDs []string, metrics *telemetry.Metrics, log zerolog.Logger) *Factory {
	return &Factory{
		registry:  registry,
		builder:   builder,
		sshConfig: sshConfig,
		actionIDs: actionIDs,
		metrics:   metrics,
		log:       log,
		remote:    make(map[string]*sshchannel.Channel),
	}
}

// Channel implements ChannelFactory.
func (f *Factory) Channel(host *inventory.Host) (transport.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if host.Local {
		if f.local == nil {
			f.local = transport.NewLocal(f.registry)
		}
		return f.local, nil
	}

	if ch, ok := f.remote[host.Name]; ok {
		return ch, nil
	}
	ch := sshchannel.NewChannel(host, f.sshConfig, f.builder, f.actionIDs, f.metrics, f.log)
	f.remote[host.Name] = ch
	return ch, nil
}

// Close shuts every open channel down. The first error wins; shutdown
// continues regardless.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var first error
	for name, ch := range f.remote {
		if err := ch.Close(); err != nil && first == nil {
			first = err
		}
		delete(f.remote, name)
	}
	if f.local != nil {
		if err := f.local.Close(); err != nil && first == nil {
			first = err
		}
		f.local = nil
	}
	return first
}
