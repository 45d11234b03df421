package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fleetgate/fleetgate/pkg/dispatch"
	"github.com/fleetgate/fleetgate/pkg/transport"
)

// coerceParam keeps JSON-typed values typed. "3" becomes a number,
// "true" a bool, "[1,2]" a list; anything that fails to parse stays the
// raw string.
func coerceParam(value string) any {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		return value
	}
	return v
}

func printReport(w io.Writer, report *dispatch.Report) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(w, "run %s\n", report.RunID)
	for _, res := range report.Results {
		printResult(w, res)
	}
	if report.Failed {
		fmt.Fprintln(w, "run failed")
	}
	for _, err := range report.AuditErrors {
		fmt.Fprintf(w, "audit: %v\n", err)
	}
	return nil
}

func printResult(w io.Writer, res *transport.Result) {
	if !res.Success {
		fmt.Fprintf(w, "  %-20s FAILED  %s: %s\n", res.Host, res.ErrKind, res.ErrMsg)
		return
	}
	fmt.Fprintf(w, "  %-20s ok      %s\n", res.Host, res.Duration().Round(time.Millisecond))
	for _, key := range payloadKeys(res.Payload) {
		fmt.Fprintf(w, "    %s: %v\n", key, res.Payload[key])
	}
}

func payloadKeys(payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
