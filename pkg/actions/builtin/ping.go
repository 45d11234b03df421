package builtin

import "context"

// Ping proves the full execution pipeline works: resolution, transport,
// and (for remote hosts) gate deployment and the wire protocol. The
// "pong" in the payload is produced on the executing side, so a
// successful ping is evidence of a working round trip, not just a
// reachable port.
func Ping(_ context.Context, params map[string]any, _ bool) (map[string]any, error) {
	out := map[string]any{"pong": true}
	if data, ok := params["data"]; ok {
		out["data"] = data
	}
	return out, nil
}
