package commands

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fleetgate/fleetgate/pkg/dispatch"
	"github.com/fleetgate/fleetgate/pkg/transport"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name  string
		pairs []string
		want  map[string]any
	}{
		{"empty", nil, nil},
		{"string", []string{"cmd=uptime"}, map[string]any{"cmd": "uptime"}},
		{"number", []string{"retries=3"}, map[string]any{"retries": float64(3)}},
		{"bool", []string{"force=true"}, map[string]any{"force": true}},
		{"list", []string{`names=["a","b"]`}, map[string]any{"names": []any{"a", "b"}}},
		{"value with equals", []string{"cmd=FOO=bar env"}, map[string]any{"cmd": "FOO=bar env"}},
		{"quoted stays string", []string{`mode="3"`}, map[string]any{"mode": "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParams(tt.pairs)
			if err != nil {
				t.Fatalf("parseParams() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseParams() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseParamsRejectsMalformed(t *testing.T) {
	for _, pair := range []string{"nokey", "=value", ""} {
		if _, err := parseParams([]string{pair}); err == nil {
			t.Errorf("parseParams(%q) accepted malformed pair", pair)
		}
	}
}

func TestPrintReport(t *testing.T) {
	now := time.Now()
	report := &dispatch.Report{
		RunID: "run-1",
		Results: []*transport.Result{
			{Host: "web1", Success: true, Payload: map[string]any{"rc": 0}, StartedAt: now, EndedAt: now},
			{Host: "web2", ErrKind: transport.KindConnectionError, ErrMsg: "dial tcp: refused", StartedAt: now, EndedAt: now},
		},
		Failed: true,
	}

	var buf bytes.Buffer
	if err := printReport(&buf, report); err != nil {
		t.Fatalf("printReport() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{"run run-1", "web1", "rc: 0", "web2", "FAILED", "ConnectionError", "run failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
