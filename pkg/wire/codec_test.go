package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "empty object", value: map[string]any{}},
		{name: "nested arrays", value: []any{[]any{"a", "b"}, []any{1.0, 2.0}}},
		{name: "braces and newlines", value: map[string]any{"text": "line1\nline2{}\n", "brace": "}{"}},
		{name: "unicode", value: map[string]any{"name": "wëb-01", "emoji": "🚀"}},
		{name: "null value", value: map[string]any{"nothing": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewEncoder(&buf).Encode(tt.value); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			payload, err := NewDecoder(&buf).Decode()
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			var got any
			if err := json.Unmarshal(payload, &got); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}

			want, _ := json.Marshal(tt.value)
			var wantVal any
			_ = json.Unmarshal(want, &wantVal)
			if !reflect.DeepEqual(got, wantVal) {
				t.Errorf("round trip = %#v, want %#v", got, wantVal)
			}
		})
	}
}

func TestFrameFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(map[string]any{}); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// {} is 2 bytes, so the frame must be exactly "00000002{}".
	if got := buf.String(); got != "00000002{}" {
		t.Errorf("frame = %q, want %q", got, "00000002{}")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantFraming bool
		wantProto   bool
		wantEOF     bool
	}{
		{name: "clean EOF", input: "", wantEOF: true},
		{name: "bad hex prefix", input: "zzzzzzzz{}", wantFraming: true},
		{name: "short header", input: "0000", wantProto: true},
		{name: "truncated payload", input: "000000ff{}", wantProto: true},
		{name: "payload not JSON", input: "00000003{{{", wantProto: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(strings.NewReader(tt.input)).Decode()
			if tt.wantEOF {
				if err != io.EOF {
					t.Fatalf("Decode() error = %v, want io.EOF", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Decode() succeeded, want error")
			}

			var fe *FramingError
			var pe *ProtocolError
			switch {
			case tt.wantFraming && !errors.As(err, &fe):
				t.Errorf("Decode() error = %v, want FramingError", err)
			case tt.wantProto && !errors.As(err, &pe):
				t.Errorf("Decode() error = %v, want ProtocolError", err)
			}
		})
	}
}

func TestDecodeUppercasePrefix(t *testing.T) {
	// Uppercase hex digits in the prefix are accepted.
	raw, err := NewDecoder(strings.NewReader("0000000A" + `{"a":true}`)).Decode()
	if err != nil {
		t.Fatalf("uppercase prefix: %v", err)
	}
	if string(raw) != `{"a":true}` {
		t.Errorf("payload = %q", raw)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.EncodeRequest("ping", map[string]any{"data": "hi"}); err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	req, err := NewDecoder(&buf).DecodeRequest()
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if req.Name != "ping" {
		t.Errorf("name = %q, want %q", req.Name, "ping")
	}
	if req.Params["data"] != "hi" {
		t.Errorf("params = %#v", req.Params)
	}
}

func TestRequestShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not an array", input: `{"name":"ping"}`},
		{name: "one element", input: `["ping"]`},
		{name: "three elements", input: `["ping",{},{}]`},
		{name: "non-string name", input: `[42,{}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			err := json.Unmarshal([]byte(tt.input), &req)
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Errorf("error = %v, want ProtocolError", err)
			}
		})
	}
}

func TestRequestCheckMode(t *testing.T) {
	req := Request{Name: "file", Params: map[string]any{"path": "/tmp/x", CheckModeParam: true}}
	params, check := req.CheckMode()
	if !check {
		t.Error("check mode not detected")
	}
	if _, ok := params[CheckModeParam]; ok {
		t.Error("check marker not stripped from params")
	}
	if params["path"] != "/tmp/x" {
		t.Errorf("params = %#v", params)
	}

	req = Request{Name: "file", Params: map[string]any{"path": "/tmp/x"}}
	if _, check := req.CheckMode(); check {
		t.Error("check mode reported without marker")
	}
}

func TestResponseInlinesFields(t *testing.T) {
	resp := OK(map[string]any{"pong": true})
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if raw["failed"] != false {
		t.Errorf("failed = %v, want false", raw["failed"])
	}
	if raw["pong"] != true {
		t.Errorf("pong field not inlined: %#v", raw)
	}

	var back Response
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Failed || back.Fields["pong"] != true {
		t.Errorf("round trip = %#v", back)
	}
}

func TestResponseFailure(t *testing.T) {
	resp := Fail("ConnectionError", "dial tcp: connection refused")
	data, _ := json.Marshal(resp)

	var back Response
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !back.Failed || back.Kind != "ConnectionError" || back.Msg == "" {
		t.Errorf("round trip = %#v", back)
	}
}

func TestResponseMissingFailed(t *testing.T) {
	var resp Response
	err := json.Unmarshal([]byte(`{"pong":true}`), &resp)
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Errorf("error = %v, want ProtocolError", err)
	}
}

func TestSequentialFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		if err := enc.EncodeRequest("ping", map[string]any{"seq": i}); err != nil {
			t.Fatalf("EncodeRequest() error = %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for i := 0; i < 3; i++ {
		req, err := dec.DecodeRequest()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if req.Params["seq"] != float64(i) {
			t.Errorf("frame %d: seq = %v", i, req.Params["seq"])
		}
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Errorf("after frames: error = %v, want io.EOF", err)
	}
}
