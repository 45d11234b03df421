// Package wire implements the length-prefixed JSON framing used between
// the controller and a gate runtime.
//
// A frame is an 8-character fixed-width hexadecimal ASCII length field
// followed immediately by exactly that many bytes of UTF-8 encoded JSON.
// No other delimiter is used, so payloads may contain any byte sequence
// including embedded newlines. The codec is transport-agnostic: it works
// over any reliable, ordered, bidirectional byte stream (an SSH session's
// stdio, a local subprocess pipe, an in-memory buffer in tests).
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// lengthFieldSize is the fixed width of the hexadecimal length prefix.
const lengthFieldSize = 8

// maxFrameSize bounds a single payload. Gate bundles travel over SFTP,
// not the wire protocol, so frames stay small; the cap guards against a
// corrupted prefix allocating gigabytes.
const maxFrameSize = 64 * 1024 * 1024

// Control verbs understood by the gate runtime. Any other first element
// of a request frame is treated as an action identifier.
const (
	VerbHello           = "Hello"
	VerbShutdown        = "Shutdown"
	VerbGoodbye         = "Goodbye"
	VerbActionResult    = "ActionResult"
	VerbActionNotFound  = "ActionNotFound"
	VerbError           = "Error"
	VerbGateSystemError = "GateSystemError"
)

// CheckModeParam is the reserved parameter name that carries the
// check-mode flag inside a request's parameter object. The gate strips
// it before handing parameters to the action.
const CheckModeParam = "_check"

// Encoder writes frames to an output stream.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode frames an arbitrary JSON-representable value and flushes it.
func (e *Encoder) Encode(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return e.writeFrame(payload)
}

// EncodeRequest frames a logical request: a two-element array of the
// action identifier (or control verb) and its parameter object.
func (e *Encoder) EncodeRequest(name string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	return e.Encode([2]any{name, params})
}

func (e *Encoder) writeFrame(payload []byte) error {
	if len(payload) > maxFrameSize {
		return &ProtocolError{Reason: fmt.Sprintf("payload of %d bytes exceeds frame limit", len(payload))}
	}
	if _, err := fmt.Fprintf(e.w, "%08x", len(payload)); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := e.w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// Decoder reads frames from an input stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads the next frame and returns its raw JSON payload.
// It returns io.EOF when the stream closes cleanly between frames.
func (d *Decoder) Decode() (json.RawMessage, error) {
	var head [lengthFieldSize]byte
	if _, err := io.ReadFull(d.r, head[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &ProtocolError{Reason: "stream closed inside frame header", Err: err}
	}

	n, err := strconv.ParseUint(string(head[:]), 16, 32)
	if err != nil {
		return nil, &FramingError{Prefix: head[:], Err: err}
	}
	if n > maxFrameSize {
		return nil, &FramingError{Prefix: head[:], Err: fmt.Errorf("declared length %d exceeds frame limit", n)}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("stream closed before %d payload bytes arrived", n), Err: err}
	}
	if !json.Valid(payload) {
		return nil, &ProtocolError{Reason: "frame payload is not valid JSON"}
	}
	return payload, nil
}

// DecodeInto reads the next frame and unmarshals it into v.
func (d *Decoder) DecodeInto(v any) error {
	payload, err := d.Decode()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &ProtocolError{Reason: "unmarshal frame payload", Err: err}
	}
	return nil
}

// DecodeRequest reads the next frame and parses it as a logical request.
func (d *Decoder) DecodeRequest() (*Request, error) {
	payload, err := d.Decode()
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		if pe, ok := err.(*ProtocolError); ok {
			return nil, pe
		}
		return nil, &ProtocolError{Reason: "unmarshal request", Err: err}
	}
	return &req, nil
}

// DecodeResponse reads the next frame and parses it as a logical response.
func (d *Decoder) DecodeResponse() (*Response, error) {
	payload, err := d.Decode()
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &ProtocolError{Reason: "unmarshal response", Err: err}
	}
	return &resp, nil
}
