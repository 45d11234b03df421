package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/fleetgate/fleetgate/pkg/gate"
	"github.com/fleetgate/fleetgate/pkg/inventory"
	"github.com/fleetgate/fleetgate/pkg/telemetry"
	"github.com/fleetgate/fleetgate/pkg/transport"
	"github.com/fleetgate/fleetgate/pkg/wire"
)

// remoteRunDir is where the gate runtime is unpacked on the remote
// host, relative to the login user's home. Keyed by content hash, so an
// already unpacked runtime is reused as-is.
const remoteRunDir = ".cache/fleetgate/run"

// Channel executes actions on one remote host over SSH. The first
// request establishes the session, ensures the gate bundle is present,
// and launches the gate runtime; subsequent requests reuse the running
// gate. Requests on the same channel are serialized because they share
// one stdio stream.
type Channel struct {
	host      *inventory.Host
	cfg       Config
	builder   *gate.Builder
	actionIDs []string
	metrics   *telemetry.Metrics
	log       zerolog.Logger

	mu      sync.Mutex
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	enc     *wire.Encoder
	dec     *wire.Decoder
	stderr  bytes.Buffer
}

// NewChannel creates a channel for one host. actionIDs is the action
// set baked into the gate bundle; a request for an action outside the
// set fails remotely with ActionNotFound. metrics may be nil.
func NewChannel(host *inventory.Host, cfg Config, builder *gate.Builder, actionIDs []string, metrics *telemetry.Metrics, log zerolog.Logger) *Channel {
	return &Channel{
		host:      host,
		cfg:       cfg,
		builder:   builder,
		actionIDs: actionIDs,
		metrics:   metrics,
		log:       log.With().Str("component", "ssh-channel").Str("host", host.Name).Logger(),
	}
}

// Execute implements transport.Channel.
func (c *Channel) Execute(ctx context.Context, req *transport.Request) *transport.Result {
	res := &transport.Result{Host: req.Host.Name, StartedAt: time.Now().UTC()}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureSession(ctx); err != nil {
		res.EndedAt = time.Now().UTC()
		res.ErrKind, res.ErrMsg = classify(err)
		return res
	}

	params := req.Params
	if req.Check {
		params = make(map[string]any, len(req.Params)+1)
		for k, v := range req.Params {
			params[k] = v
		}
		params[wire.CheckModeParam] = true
	}

	if err := c.enc.EncodeRequest(req.ActionID, params); err != nil {
		c.teardown()
		res.EndedAt = time.Now().UTC()
		res.ErrKind = transport.KindRemoteExecution
		res.ErrMsg = (&transport.RemoteExecutionError{Host: req.Host.Name, Err: err}).Error()
		return res
	}

	resp, err := c.dec.DecodeResponse()
	res.EndedAt = time.Now().UTC()
	if err != nil {
		// A dead or confused stream is unrecoverable for this session.
		c.teardown()
		res.ErrKind, res.ErrMsg = classifyDecode(req.Host.Name, err, c.stderr.String())
		return res
	}

	res.Payload = resp.Fields
	if resp.Failed {
		res.ErrKind = resp.Kind
		if res.ErrKind == "" {
			res.ErrKind = transport.KindActionError
		}
		res.ErrMsg = resp.Msg
		return res
	}

	res.Success = true
	return res
}

// Close shuts the remote gate down politely and releases the session.
// The bundle stays in the remote cache for future runs.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enc != nil {
		if err := c.enc.EncodeRequest(wire.VerbShutdown, nil); err == nil {
			// Best effort: wait for the goodbye so the gate exits cleanly.
			_, _ = c.dec.DecodeResponse()
		}
	}
	c.teardown()
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// ensureSession dials the host, places the bundle, launches the gate,
// and completes the hello handshake. Idempotent while the session is up.
func (c *Channel) ensureSession(ctx context.Context) error {
	if c.session != nil {
		return nil
	}

	bundle, err := c.builder.Build(ctx, c.actionIDs)
	if err != nil {
		return err
	}

	if c.client == nil {
		if err := c.dial(); err != nil {
			return err
		}
	}

	if err := c.placeBundle(bundle); err != nil {
		c.client.Close()
		c.client = nil
		return &transport.ConnectionError{Host: c.host.Name, Err: err}
	}

	if err := c.launch(ctx, bundle.Hash); err != nil {
		return err
	}
	return nil
}

func (c *Channel) dial() error {
	addr := c.host.Address
	if addr == "" {
		addr = c.host.Name
	}
	clientCfg, err := c.cfg.clientConfig(c.host.User, c.host.KeyPath)
	if err != nil {
		return &transport.ConnectionError{Host: c.host.Name, Err: err}
	}

	client, err := ssh.Dial("tcp", net.JoinHostPort(addr, strconv.Itoa(c.host.SSHPort())), clientCfg)
	if err != nil {
		return &transport.ConnectionError{Host: c.host.Name, Err: err}
	}
	c.client = client
	c.log.Debug().Str("addr", addr).Msg("session established")
	return nil
}

// placeBundle uploads the bundle unless the content-addressed path
// already exists remotely.
func (c *Channel) placeBundle(bundle *gate.Bundle) error {
	sc, err := sftp.NewClient(c.client)
	if err != nil {
		return fmt.Errorf("open sftp subsystem: %w", err)
	}
	defer sc.Close()

	remote := gate.RemotePath(bundle.Hash)
	if _, err := sc.Stat(remote); err == nil {
		c.log.Debug().Str("hash", bundle.Hash).Msg("bundle already on host")
		return nil
	}

	if err := sc.MkdirAll(gate.RemoteDir); err != nil {
		return fmt.Errorf("create remote cache directory: %w", err)
	}

	tmp := remote + ".partial"
	f, err := sc.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := f.Write(bundle.Data); err != nil {
		f.Close()
		sc.Remove(tmp)
		return fmt.Errorf("upload bundle: %w", err)
	}
	if err := f.Close(); err != nil {
		sc.Remove(tmp)
		return fmt.Errorf("finish upload: %w", err)
	}
	if err := sc.PosixRename(tmp, remote); err != nil {
		// Older servers lack posix-rename; plain rename fails on an
		// existing target, which here means a concurrent upload won.
		if rerr := sc.Rename(tmp, remote); rerr != nil {
			sc.Remove(tmp)
			if _, serr := sc.Stat(remote); serr != nil {
				return fmt.Errorf("place bundle: %w", err)
			}
		}
	}

	c.metrics.AddUploadBytes(len(bundle.Data))
	c.log.Info().Str("hash", bundle.Hash).Int("bytes", len(bundle.Data)).Msg("bundle uploaded")
	return nil
}

// launch starts the gate runtime and waits for its hello.
func (c *Channel) launch(ctx context.Context, hash string) error {
	session, err := c.client.NewSession()
	if err != nil {
		return &transport.ConnectionError{Host: c.host.Name, Err: err}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return &transport.RemoteExecutionError{Host: c.host.Name, Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return &transport.RemoteExecutionError{Host: c.host.Name, Err: err}
	}
	c.stderr.Reset()
	session.Stderr = &c.stderr

	if err := session.Start(LaunchCommand(c.host.Interpreter, hash)); err != nil {
		session.Close()
		return &transport.RemoteExecutionError{Host: c.host.Name, Err: err}
	}

	c.session = session
	c.stdin = stdin
	c.enc = wire.NewEncoder(stdin)
	c.dec = wire.NewDecoder(stdout)

	if err := c.hello(ctx); err != nil {
		c.teardown()
		return err
	}
	return nil
}

// hello performs the readiness handshake with a bounded wait.
func (c *Channel) hello(ctx context.Context) error {
	if err := c.enc.EncodeRequest(wire.VerbHello, nil); err != nil {
		return &transport.RemoteExecutionError{Host: c.host.Name, Err: err}
	}

	type outcome struct {
		resp *wire.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := c.dec.DecodeResponse()
		done <- outcome{resp, err}
	}()

	wait := c.cfg.SessionReady
	if wait == 0 {
		wait = 15 * time.Second
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return &transport.RemoteExecutionError{
				Host: c.host.Name,
				Err:  fmt.Errorf("gate did not answer hello: %w (stderr: %s)", out.err, strings.TrimSpace(c.stderr.String())),
			}
		}
		if out.resp.Failed {
			return &transport.RemoteExecutionError{
				Host: c.host.Name,
				Err:  fmt.Errorf("gate rejected hello: %s", out.resp.Msg),
			}
		}
		return nil
	case <-timer.C:
		return &transport.RemoteExecutionError{Host: c.host.Name, Err: errors.New("gate did not become ready in time")}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown drops the gate session but keeps the SSH client for reuse.
func (c *Channel) teardown() {
	if c.stdin != nil {
		c.stdin.Close()
		c.stdin = nil
	}
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	c.enc = nil
	c.dec = nil
}

// LaunchCommand renders the remote command that unpacks the bundle into
// a hash-keyed directory, reusing a prior unpack, and execs the gate
// runtime. The script uses only double quotes so it survives the outer
// single-quoted shell argument.
func LaunchCommand(interpreter, hash string) string {
	if interpreter == "" {
		interpreter = "/bin/sh"
	}
	script := fmt.Sprintf(
		`set -e; d="$HOME/%s/%s"; if [ ! -x "$d/gate-runner" ]; then mkdir -p "$d"; tar -xf "$HOME/%s" -C "$d"; chmod +x "$d/gate-runner"; fi; exec "$d/gate-runner"`,
		remoteRunDir, hash, gate.RemotePath(hash))
	return interpreter + " -c '" + script + "'"
}

// classify maps a session-establishment error to a result kind.
func classify(err error) (kind, msg string) {
	var ce *transport.ConnectionError
	var be *gate.BuildError
	switch {
	case errors.As(err, &ce):
		return transport.KindConnectionError, err.Error()
	case errors.As(err, &be):
		return transport.KindBuildError, err.Error()
	default:
		return transport.KindRemoteExecution, err.Error()
	}
}

// classifyDecode maps a response-stream error to a result kind,
// appending captured remote stderr which usually names the real cause.
func classifyDecode(host string, err error, stderr string) (kind, msg string) {
	var fe *wire.FramingError
	var pe *wire.ProtocolError
	switch {
	case errors.As(err, &fe):
		kind = transport.KindFramingError
	case errors.As(err, &pe):
		kind = transport.KindProtocolError
	default:
		kind = transport.KindRemoteExecution
	}
	msg = (&transport.RemoteExecutionError{Host: host, Err: err}).Error()
	if s := strings.TrimSpace(stderr); s != "" {
		msg += " (stderr: " + s + ")"
	}
	return kind, msg
}
