package wire

import "fmt"

// FramingError indicates the 8-byte length prefix of a frame could not
// be parsed as hexadecimal. The stream is unrecoverable after this.
type FramingError struct {
	Prefix []byte
	Err    error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("invalid frame length prefix %q: %v", e.Prefix, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// ProtocolError indicates a well-framed but malformed message: the
// payload is not valid JSON, the stream closed before the declared
// payload length arrived, or the message shape is wrong.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
