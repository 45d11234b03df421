package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetgate/fleetgate/pkg/actions"
	"github.com/fleetgate/fleetgate/pkg/wire"
)

func serveRegistry(t *testing.T) *actions.Registry {
	t.Helper()
	r := actions.NewRegistry()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(r.Register("ping", actions.Func(func(_ context.Context, params map[string]any, check bool) (map[string]any, error) {
		return map[string]any{"pong": params["data"], "check": check}, nil
	})))
	must(r.Register("broken", actions.Func(func(context.Context, map[string]any, bool) (map[string]any, error) {
		return map[string]any{"partial": true}, errors.New("disk on fire")
	})))
	must(r.Register("panics", actions.Func(func(context.Context, map[string]any, bool) (map[string]any, error) {
		panic("boom")
	})))
	return r
}

// runSession feeds a sequence of request frames through Serve and
// returns the decoded responses.
func runSession(t *testing.T, encode func(*wire.Encoder)) ([]*wire.Response, error) {
	t.Helper()
	var in, out bytes.Buffer
	encode(wire.NewEncoder(&in))

	err := Serve(context.Background(), &in, &out, serveRegistry(t), "test", zerolog.Nop())

	dec := wire.NewDecoder(&out)
	var resps []*wire.Response
	for {
		resp, derr := dec.DecodeResponse()
		if derr != nil {
			break
		}
		resps = append(resps, resp)
	}
	return resps, err
}

func TestServeSession(t *testing.T) {
	resps, err := runSession(t, func(enc *wire.Encoder) {
		enc.EncodeRequest(wire.VerbHello, nil)
		enc.EncodeRequest("ping", map[string]any{"data": "hi"})
		enc.EncodeRequest("ping", map[string]any{"data": "hi", wire.CheckModeParam: true})
		enc.EncodeRequest("no_such_action", nil)
		enc.EncodeRequest("broken", nil)
		enc.EncodeRequest("panics", nil)
		enc.EncodeRequest(wire.VerbShutdown, nil)
	})
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if len(resps) != 7 {
		t.Fatalf("got %d responses, want 7", len(resps))
	}

	if resps[0].Failed || resps[0].Fields["hello"] != "fleetgate-gate" {
		t.Errorf("hello = %+v", resps[0])
	}
	if resps[1].Failed || resps[1].Fields["pong"] != "hi" || resps[1].Fields["check"] != false {
		t.Errorf("ping = %+v", resps[1])
	}
	if resps[2].Fields["check"] != true {
		t.Errorf("check-mode marker not honored: %+v", resps[2])
	}
	if !resps[3].Failed || resps[3].Kind != wire.VerbActionNotFound {
		t.Errorf("unknown action = %+v", resps[3])
	}
	if !resps[4].Failed || resps[4].Kind != "ActionError" || resps[4].Fields["partial"] != true {
		t.Errorf("failing action = %+v", resps[4])
	}
	if !resps[5].Failed || resps[5].Kind != wire.VerbGateSystemError {
		t.Errorf("panicking action = %+v", resps[5])
	}
	if resps[6].Failed || resps[6].Fields["goodbye"] != true {
		t.Errorf("shutdown = %+v", resps[6])
	}
}

func TestServeCleanEOF(t *testing.T) {
	resps, err := runSession(t, func(enc *wire.Encoder) {
		enc.EncodeRequest(wire.VerbHello, nil)
	})
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if len(resps) != 1 {
		t.Errorf("got %d responses, want 1", len(resps))
	}
}

func TestServeMalformedRequestKeepsServing(t *testing.T) {
	var in, out bytes.Buffer
	enc := wire.NewEncoder(&in)
	// A valid frame whose payload is not a request array.
	if err := enc.Encode(map[string]any{"not": "a request"}); err != nil {
		t.Fatal(err)
	}
	enc.EncodeRequest("ping", map[string]any{"data": "still alive"})

	if err := Serve(context.Background(), &in, &out, serveRegistry(t), "test", zerolog.Nop()); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	dec := wire.NewDecoder(&out)
	first, err := dec.DecodeResponse()
	if err != nil {
		t.Fatal(err)
	}
	if !first.Failed || first.Kind != wire.VerbError {
		t.Errorf("malformed request = %+v", first)
	}
	second, err := dec.DecodeResponse()
	if err != nil {
		t.Fatal(err)
	}
	if second.Failed || second.Fields["pong"] != "still alive" {
		t.Errorf("followup request = %+v", second)
	}
}

func TestServeFramingErrorStops(t *testing.T) {
	in := bytes.NewBufferString("zzzzzzzz{}")
	var out bytes.Buffer

	err := Serve(context.Background(), in, &out, serveRegistry(t), "test", zerolog.Nop())
	var fe *wire.FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("Serve() error = %v, want framing error", err)
	}

	resp, derr := wire.NewDecoder(&out).DecodeResponse()
	if derr != nil {
		t.Fatal(derr)
	}
	if !resp.Failed || resp.Kind != wire.VerbGateSystemError {
		t.Errorf("final response = %+v", resp)
	}
}

func TestServeEndsWhenContextCanceled(t *testing.T) {
	reg := serveRegistry(t)
	pr, pw := io.Pipe()
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, pr, &out, reg, "test", zerolog.Nop()) }()

	// No frame ever arrives; cancellation alone must end the session.
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session kept serving after cancellation")
	}

	// A request arriving after expiry gets no response.
	go func() {
		wire.NewEncoder(pw).EncodeRequest(wire.VerbHello, nil)
		pw.Close()
	}()
	if out.Len() != 0 {
		t.Errorf("expired session wrote a response: %s", out.String())
	}
}

func TestServeExpiresBetweenRequests(t *testing.T) {
	reg := serveRegistry(t)
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, inR, outW, reg, "test", zerolog.Nop()) }()

	enc := wire.NewEncoder(inW)
	dec := wire.NewDecoder(outR)
	if err := enc.EncodeRequest(wire.VerbHello, nil); err != nil {
		t.Fatal(err)
	}
	resp, err := dec.DecodeResponse()
	if err != nil || resp.Failed {
		t.Fatalf("hello = %+v, %v", resp, err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session kept serving while idle after expiry")
	}
}

func TestServeResponsesStayOrdered(t *testing.T) {
	const n = 20
	resps, err := runSession(t, func(enc *wire.Encoder) {
		for i := 0; i < n; i++ {
			enc.EncodeRequest("ping", map[string]any{"data": fmt.Sprintf("seq-%d", i)})
		}
	})
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if len(resps) != n {
		t.Fatalf("got %d responses, want %d", len(resps), n)
	}
	for i, resp := range resps {
		if want := fmt.Sprintf("seq-%d", i); resp.Fields["pong"] != want {
			t.Errorf("response %d carries %v, want %s", i, resp.Fields["pong"], want)
		}
	}
}
