package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/actions/builtin"
	"github.com/fleetgate/fleetgate/pkg/audit"
	"github.com/fleetgate/fleetgate/pkg/config"
	"github.com/fleetgate/fleetgate/pkg/dispatch"
	"github.com/fleetgate/fleetgate/pkg/gate"
	"github.com/fleetgate/fleetgate/pkg/inventory"
	"github.com/fleetgate/fleetgate/pkg/policy"
	"github.com/fleetgate/fleetgate/pkg/secrets"
	"github.com/fleetgate/fleetgate/pkg/telemetry"
	sshchannel "github.com/fleetgate/fleetgate/pkg/transport/ssh"
)

// app wires the controller's collaborators together for one command
// invocation. Commands that only touch a slice of it (state, audit)
// build that slice directly instead.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	registry   *actions.Registry
	inventory  *inventory.Table
	builder    *gate.Builder
	factory    *dispatch.Factory
	dispatcher *dispatch.Dispatcher
	recorder   audit.Recorder
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fleetgate", "config.yaml")
}

func defaultRunnerPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fleetgate", "gate-runner")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	return config.Load(path)
}

// telemetryConfig maps the YAML telemetry section onto the telemetry
// package's config, starting from its defaults.
func telemetryConfig(cfg *config.Config, version string) (*telemetry.Config, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version

	tcfg.Logging.Level = cfg.Telemetry.LogLevel
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	tcfg.Logging.Format = cfg.Telemetry.LogFormat
	tcfg.Logging.EnableCaller = verbose

	tcfg.Metrics.Enabled = cfg.Telemetry.MetricsEnabled
	tcfg.Metrics.ListenAddress = cfg.Telemetry.MetricsListen

	tcfg.Tracing.Enabled = cfg.Telemetry.TracingEnabled
	tcfg.Tracing.Exporter = cfg.Telemetry.TraceExporter
	tcfg.Tracing.Endpoint = cfg.Telemetry.TraceEndpoint
	tcfg.Tracing.SamplingRate = cfg.Telemetry.TraceSampling

	if err := tcfg.Validate(); err != nil {
		return nil, err
	}
	return tcfg, nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, error) {
	tcfg, err := telemetryConfig(cfg, "dev")
	if err != nil {
		return zerolog.Nop(), err
	}
	return telemetry.NewLogger(tcfg.Logging)
}

func loadInventory(cfg *config.Config) (*inventory.Table, error) {
	var table *inventory.Table
	if _, err := os.Stat(cfg.InventoryPath); err == nil {
		table, err = inventory.LoadFile(cfg.InventoryPath)
		if err != nil {
			return nil, err
		}
	} else {
		table, err = inventory.NewTable(nil, nil)
		if err != nil {
			return nil, err
		}
	}
	// "localhost" always resolves, inventory file or not.
	if _, ok := table.ResolveHost("localhost"); !ok {
		if err := table.AddHost(inventory.Localhost()); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func openRecorder(ctx context.Context, cfg *config.Config, log zerolog.Logger) (audit.Recorder, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		return audit.OpenSQLite(ctx, cfg.Audit.Path)
	case "none":
		return audit.Discard{}, nil
	default:
		return audit.OpenFile(cfg.Audit.Path, log)
	}
}

func newApp(ctx context.Context, version, runnerPath string) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	tcfg, err := telemetryConfig(cfg, version)
	if err != nil {
		return nil, err
	}
	log, err := telemetry.NewLogger(tcfg.Logging)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return nil, err
	}
	if tcfg.Metrics.Enabled && tcfg.Metrics.ListenAddress != "" {
		go func() {
			if err := http.ListenAndServe(tcfg.Metrics.ListenAddress, metrics.Handler()); err != nil {
				log.Warn().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion, tcfg.Environment)
	if err != nil {
		return nil, err
	}

	table, err := loadInventory(cfg)
	if err != nil {
		return nil, err
	}

	registry := actions.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		return nil, err
	}

	if runnerPath == "" {
		runnerPath = defaultRunnerPath()
	}
	builder := gate.NewBuilder(registry, gate.NewBinaryRuntime(runnerPath, version), cfg.CacheDir, metrics, log)

	sshCfg := sshchannel.DefaultConfig()
	sshCfg.User = cfg.SSH.User
	sshCfg.KeyPath = cfg.SSH.KeyPath
	if cfg.SSH.KnownHostsPath != "" {
		sshCfg.KnownHostsPath = cfg.SSH.KnownHostsPath
	}
	sshCfg.ConnectTimeout = cfg.SSH.ConnectTimeout()

	factory := dispatch.NewFactory(registry, builder, sshCfg, registry.IDs(), metrics, log)

	bindings := secrets.NewBindings()
	for _, b := range cfg.Secrets.Bindings {
		bindings.Bind(b.Action, b.Param, b.Key)
	}

	recorder, err := openRecorder(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	safety, err := policy.NewEngine(ctx, policy.Options{AllowDestructive: cfg.AllowDestructive}, log)
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New(dispatch.Deps{
		Source:   table,
		Channels: factory,
		Registry: registry,
		Bindings: bindings,
		Secrets:  secrets.EnvSource{},
		Recorder: recorder,
		Safety:   safety,
		Metrics:  metrics,
		Tracer:   tracer,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		inventory:  table,
		builder:    builder,
		factory:    factory,
		dispatcher: dispatcher,
		recorder:   recorder,
		metrics:    metrics,
		tracer:     tracer,
	}, nil
}

// options derives per-run options from configuration, with flag
// overrides applied by the calling command.
func (a *app) options() dispatch.Options {
	return dispatch.Options{
		Parallel: a.cfg.Parallel,
		FailFast: a.cfg.FailFast,
	}
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if err := a.factory.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.recorder.Close(); err != nil {
		errs = append(errs, err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// parseParams turns key=value pairs into a parameter object. Values
// that parse as JSON keep their parsed type; everything else stays a
// string, so --param retries=3 yields a number and --param cmd=uptime
// a string.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := cutParam(pair)
		if !ok {
			return nil, fmt.Errorf("parameter %q is not key=value", pair)
		}
		params[key] = coerceParam(value)
	}
	return params, nil
}

func cutParam(pair string) (string, string, bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '=' {
			return pair[:i], pair[i+1:], i > 0
		}
	}
	return "", "", false
}
