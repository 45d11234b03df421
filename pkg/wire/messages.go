package wire

import (
	"encoding/json"
	"fmt"
)

// Request is the logical request message: on the wire it is the
// two-element array [name, params]. Name is either a control verb or an
// action identifier.
type Request struct {
	Name   string
	Params map[string]any
}

// MarshalJSON encodes the request as a two-element array.
func (r Request) MarshalJSON() ([]byte, error) {
	params := r.Params
	if params == nil {
		params = map[string]any{}
	}
	return json.Marshal([2]any{r.Name, params})
}

// UnmarshalJSON decodes the two-element array form.
func (r *Request) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return &ProtocolError{Reason: "request is not a JSON array", Err: err}
	}
	if len(parts) != 2 {
		return &ProtocolError{Reason: fmt.Sprintf("request has %d elements, want 2", len(parts))}
	}
	if err := json.Unmarshal(parts[0], &r.Name); err != nil {
		return &ProtocolError{Reason: "request name is not a string", Err: err}
	}
	if err := json.Unmarshal(parts[1], &r.Params); err != nil {
		return &ProtocolError{Reason: "request parameters are not an object", Err: err}
	}
	return nil
}

// CheckMode reports whether the reserved check-mode parameter is set,
// and returns the parameter object with the marker stripped.
func (r *Request) CheckMode() (map[string]any, bool) {
	v, ok := r.Params[CheckModeParam]
	if !ok {
		return r.Params, false
	}
	params := make(map[string]any, len(r.Params)-1)
	for k, val := range r.Params {
		if k != CheckModeParam {
			params[k] = val
		}
	}
	check, _ := v.(bool)
	return params, check
}

// Response is the logical response message: a JSON object carrying a
// failure indicator, error detail when failed, and the action's result
// fields inlined at the top level.
type Response struct {
	Failed bool
	// Kind classifies a failure (e.g. "ActionNotFound", "RemoteExecutionError").
	Kind string
	// Msg is the human-readable error detail when failed.
	Msg string
	// Fields holds the action's result payload, inlined beside "failed"
	// on the wire.
	Fields map[string]any
}

// reserved response keys that never belong to the action payload.
const (
	keyFailed = "failed"
	keyKind   = "kind"
	keyMsg    = "msg"
)

// MarshalJSON inlines the result fields beside the failure indicator.
func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		if k == keyFailed || k == keyKind || k == keyMsg {
			continue
		}
		out[k] = v
	}
	out[keyFailed] = r.Failed
	if r.Kind != "" {
		out[keyKind] = r.Kind
	}
	if r.Msg != "" {
		out[keyMsg] = r.Msg
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the failure indicator and error detail from the
// inlined result fields.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ProtocolError{Reason: "response is not a JSON object", Err: err}
	}
	if failed, ok := raw[keyFailed].(bool); ok {
		r.Failed = failed
	} else {
		return &ProtocolError{Reason: `response is missing the "failed" indicator`}
	}
	if kind, ok := raw[keyKind].(string); ok {
		r.Kind = kind
	}
	if msg, ok := raw[keyMsg].(string); ok {
		r.Msg = msg
	}
	delete(raw, keyFailed)
	delete(raw, keyKind)
	delete(raw, keyMsg)
	r.Fields = raw
	return nil
}

// OK builds a success response wrapping an action payload.
func OK(fields map[string]any) *Response {
	return &Response{Fields: fields}
}

// Fail builds a failure response with an error kind and message.
func Fail(kind, msg string) *Response {
	return &Response{Failed: true, Kind: kind, Msg: msg}
}
