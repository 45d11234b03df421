// Package dispatch fans one action invocation out across resolved
// target hosts: parameter overlay, secret injection, bounded
// parallelism, optional fail-fast, and audit recording.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/audit"
	"github.com/fleetgate/fleetgate/pkg/inventory"
	"github.com/fleetgate/fleetgate/pkg/policy"
	"github.com/fleetgate/fleetgate/pkg/secrets"
	"github.com/fleetgate/fleetgate/pkg/telemetry"
	"github.com/fleetgate/fleetgate/pkg/transport"
)

// Options tune one Execute call.
type Options struct {
	// Parallel bounds concurrent hosts. Zero means all at once.
	Parallel int

	// FailFast cancels remaining work on the first host failure.
	FailFast bool

	// Check runs the action in check mode.
	Check bool

	// StrictTargets makes an unmatched target term an error instead of
	// an empty set.
	StrictTargets bool
}

// Report is the aggregate outcome of one run.
type Report struct {
	// RunID identifies the run in audit records and traces.
	RunID string

	// Results holds one result per resolved host, in resolution order.
	Results []*transport.Result

	// Failed reports whether any host failed.
	Failed bool

	// Unwrapped is set when the target spec named exactly one host
	// literally; it aliases Results[0].
	Unwrapped *transport.Result

	// AuditErrors collects recorder failures. They never flip a
	// result's success.
	AuditErrors []error
}

// ChannelFactory yields the execution channel for a host. Factories own
// channel lifecycle; the dispatcher never closes them.
type ChannelFactory interface {
	Channel(host *inventory.Host) (transport.Channel, error)
}

// Dispatcher executes actions across the inventory.
type Dispatcher struct {
	source   inventory.Source
	channels ChannelFactory
	registry *actions.Registry
	bindings *secrets.Bindings
	secrets  secrets.Source
	recorder audit.Recorder
	safety   *policy.Engine
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	log      zerolog.Logger
}

// Deps carries the dispatcher's collaborators. Recorder, Safety,
// Metrics, and Tracer may be nil for callers that do not need them.
type Deps struct {
	Source   inventory.Source
	Channels ChannelFactory
	Registry *actions.Registry
	Bindings *secrets.Bindings
	Secrets  secrets.Source
	Recorder audit.Recorder
	Safety   *policy.Engine
	Metrics  *telemetry.Metrics
	Tracer   *telemetry.Tracer
	Logger   zerolog.Logger
}

// New creates a dispatcher.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Source == nil || deps.Channels == nil || deps.Registry == nil {
		return nil, fmt.Errorf("dispatcher requires an inventory source, channel factory, and registry")
	}
	d := &Dispatcher{
		source:   deps.Source,
		channels: deps.Channels,
		registry: deps.Registry,
		bindings: deps.Bindings,
		secrets:  deps.Secrets,
		recorder: deps.Recorder,
		safety:   deps.Safety,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		log:      deps.Logger.With().Str("component", "dispatcher").Logger(),
	}
	if d.bindings == nil {
		d.bindings = secrets.NewBindings()
	}
	if d.recorder == nil {
		d.recorder = audit.Discard{}
	}
	return d, nil
}

// Execute runs one action against every host the target spec resolves
// to. An empty resolution returns an empty successful report.
func (d *Dispatcher) Execute(ctx context.Context, actionID, targetSpec string, params map[string]any, opts Options) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	log := d.log.With().Str("run_id", report.RunID).Str("action", actionID).Logger()

	hosts, err := resolveTargets(d.source, targetSpec, opts.StrictTargets)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		log.Debug().Str("targets", targetSpec).Msg("target spec resolved to no hosts")
		return report, nil
	}

	if d.safety != nil {
		decision, err := d.safety.Check(ctx, actionID, params)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			return nil, fmt.Errorf("%s", policy.FormatDenial(decision, actionID))
		}
	}

	secretValues, secretErr := d.bindings.Resolve(actionID, d.secrets)

	if d.metrics != nil {
		d.metrics.RunStarted()
	}
	runCtx := telemetry.WithLogger(ctx, log)
	if d.tracer != nil {
		var span trace.Span
		runCtx, span = d.tracer.StartRunSpan(runCtx, report.RunID, actionID)
		defer span.End()
	}

	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	parallel := opts.Parallel
	if parallel <= 0 || parallel > len(hosts) {
		parallel = len(hosts)
	}
	sem := make(chan struct{}, parallel)
	results := make([]*transport.Result, len(hosts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		auditErr []error
	)

	for i, host := range hosts {
		wg.Add(1)
		go func(i int, host *inventory.Host) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				results[i] = canceledResult(host.Name, runCtx.Err())
				return
			}
			if runCtx.Err() != nil {
				results[i] = canceledResult(host.Name, runCtx.Err())
				return
			}

			var res *transport.Result
			if secretErr != nil {
				res = secretFailure(host.Name, secretErr)
			} else {
				res = d.executeOne(runCtx, host, actionID, params, secretValues, opts.Check)
			}
			results[i] = res

			if err := d.record(runCtx, report.RunID, host.Name, actionID, params, secretValues, opts.Check, res); err != nil {
				mu.Lock()
				auditErr = append(auditErr, err)
				mu.Unlock()
			}

			if !res.Success && opts.FailFast {
				cancel()
			}
		}(i, host)
	}
	wg.Wait()

	report.Results = results
	report.AuditErrors = auditErr
	for _, res := range results {
		if !res.Success {
			report.Failed = true
			break
		}
	}
	if len(hosts) == 1 && isSingleLiteral(d.source, targetSpec) {
		report.Unwrapped = results[0]
	}

	if d.metrics != nil {
		status := "success"
		if report.Failed {
			status = "failed"
		}
		d.metrics.RunCompleted(status)
	}
	log.Info().Int("hosts", len(hosts)).Bool("failed", report.Failed).Msg("run finished")
	return report, nil
}

// executeOne overlays parameters for a host and drives its channel.
func (d *Dispatcher) executeOne(ctx context.Context, host *inventory.Host, actionID string, params, secretValues map[string]any, check bool) *transport.Result {
	effective := d.overlay(host, params, secretValues)

	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.StartHostSpan(ctx, host.Name, actionID, check)
		defer span.End()
	}

	ch, err := d.channels.Channel(host)
	if err != nil {
		if span != nil {
			telemetry.RecordError(span, err)
		}
		now := time.Now().UTC()
		return &transport.Result{
			Host:      host.Name,
			StartedAt: now,
			EndedAt:   now,
			ErrKind:   transport.KindConnectionError,
			ErrMsg:    err.Error(),
		}
	}

	res := ch.Execute(ctx, &transport.Request{
		Host:           host,
		ActionID:       actionID,
		Params:         effective,
		OriginalParams: params,
		Check:          check,
	})

	if !res.Success && span != nil {
		telemetry.RecordError(span, res.Err())
	}
	if d.metrics != nil {
		status := "success"
		if !res.Success {
			status = "failed"
		}
		d.metrics.ObserveAction(host.Name, actionID, status, res.Duration().Seconds())
	}
	return res
}

// overlay merges parameters, lowest to highest precedence: group vars,
// host vars, secret bindings, explicit call parameters.
func (d *Dispatcher) overlay(host *inventory.Host, params, secretValues map[string]any) map[string]any {
	out := make(map[string]any)
	for _, groupName := range host.Groups {
		if g, ok := d.source.ResolveGroup(groupName); ok {
			for k, v := range g.Vars {
				out[k] = v
			}
		}
	}
	for k, v := range host.Vars {
		out[k] = v
	}
	for k, v := range secretValues {
		out[k] = v
	}
	for k, v := range params {
		out[k] = v
	}
	return out
}

// record writes the audit entry with secret parameters redacted.
func (d *Dispatcher) record(ctx context.Context, runID, host, actionID string, params, secretValues map[string]any, check bool, res *transport.Result) error {
	secretNames := make(map[string]struct{})
	for name := range d.registry.SecretParams(actionID) {
		secretNames[name] = struct{}{}
	}
	// Injected parameters are secret by definition, whatever the action
	// declares.
	rawValues := make([]string, 0, len(secretValues))
	for name, v := range secretValues {
		secretNames[name] = struct{}{}
		if s, ok := v.(string); ok {
			rawValues = append(rawValues, s)
		}
	}

	recorded := audit.RedactParams(params, secretNames)
	recorded = audit.ScrubValues(recorded, rawValues)

	entry := &audit.Entry{
		RunID:     runID,
		Host:      host,
		ActionID:  actionID,
		Params:    recorded,
		Check:     check,
		Success:   res.Success,
		ErrKind:   res.ErrKind,
		ErrMsg:    res.ErrMsg,
		StartedAt: res.StartedAt,
		EndedAt:   res.EndedAt,
	}
	if err := d.recorder.Record(ctx, entry); err != nil {
		d.log.Error().Err(err).Str("host", host).Msg("audit record failed")
		return fmt.Errorf("audit %s on %s: %w", actionID, host, err)
	}
	return nil
}

func canceledResult(host string, err error) *transport.Result {
	now := time.Now().UTC()
	msg := "run canceled before dispatch"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &transport.Result{
		Host:      host,
		StartedAt: now,
		EndedAt:   now,
		ErrKind:   transport.KindRemoteExecution,
		ErrMsg:    msg,
	}
}

func secretFailure(host string, err error) *transport.Result {
	now := time.Now().UTC()
	return &transport.Result{
		Host:      host,
		StartedAt: now,
		EndedAt:   now,
		ErrKind:   transport.KindSecretNotFound,
		ErrMsg:    err.Error(),
	}
}
