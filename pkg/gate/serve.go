package gate

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/wire"
)

// Serve drives the gate side of the wire protocol over a byte stream
// until a shutdown verb, clean EOF, or context cancellation. Every
// request frame produces exactly one response frame, in order; the
// stream is the only channel, so nothing else may write to w.
//
// Cancellation (the session TTL, a signal) ends the session even while
// the decoder is blocked waiting for the next frame: frames are read on
// a separate goroutine so the loop can observe ctx between them. That
// goroutine may stay blocked in its final read after Serve returns; the
// process exits with the session, so it never accumulates.
func Serve(ctx context.Context, r io.Reader, w io.Writer, registry *actions.Registry, version string, log zerolog.Logger) error {
	enc := wire.NewEncoder(w)
	dec := wire.NewDecoder(r)
	log = log.With().Str("component", "gate").Logger()

	type frame struct {
		req *wire.Request
		err error
	}
	frames := make(chan frame)
	go func() {
		for {
			req, err := dec.DecodeRequest()
			select {
			case frames <- frame{req: req, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				var pe *wire.ProtocolError
				if errors.As(err, &pe) {
					continue
				}
				// EOF and framing errors end the stream.
				return
			}
		}
	}()

	for {
		var f frame
		select {
		case <-ctx.Done():
			log.Info().AnErr("cause", ctx.Err()).Msg("session expired")
			return ctx.Err()
		case f = <-frames:
		}

		if f.err != nil {
			if errors.Is(f.err, io.EOF) {
				log.Debug().Msg("stream closed, exiting")
				return nil
			}
			var pe *wire.ProtocolError
			if errors.As(f.err, &pe) {
				// The frame arrived intact but carried garbage; report
				// and keep serving.
				if werr := enc.Encode(wire.Fail(wire.VerbError, pe.Error())); werr != nil {
					return werr
				}
				continue
			}
			// A framing error means the stream is desynchronized and
			// nothing after this point can be trusted.
			_ = enc.Encode(wire.Fail(wire.VerbGateSystemError, f.err.Error()))
			return f.err
		}

		switch f.req.Name {
		case wire.VerbHello:
			if err := enc.Encode(wire.OK(map[string]any{"hello": "fleetgate-gate", "version": version})); err != nil {
				return err
			}
		case wire.VerbShutdown:
			log.Debug().Msg("shutdown requested")
			return enc.Encode(wire.OK(map[string]any{"goodbye": true}))
		default:
			resp := invoke(ctx, registry, f.req, log)
			if err := enc.Encode(resp); err != nil {
				return err
			}
		}
	}
}

// invoke runs one action request, recovering panics into a system
// error response so a broken action never kills the gate.
func invoke(ctx context.Context, registry *actions.Registry, req *wire.Request, log zerolog.Logger) (resp *wire.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("action", req.Name).Interface("panic", rec).Msg("action panicked")
			resp = wire.Fail(wire.VerbGateSystemError, fmt.Sprintf("action %s panicked: %v", req.Name, rec))
		}
	}()

	impl, err := registry.Resolve(req.Name)
	if err != nil {
		return wire.Fail(wire.VerbActionNotFound, err.Error())
	}

	params, check := req.CheckMode()
	payload, err := impl.Invoke(ctx, params, check)
	if err != nil {
		resp = wire.Fail("ActionError", err.Error())
		resp.Fields = payload
		return resp
	}
	return wire.OK(payload)
}
