package tunnel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// FrameType identifies a control-plane message.
type FrameType string

const (
	FrameConnectRequest  FrameType = "CONNECT_REQ"
	FrameConnectResponse FrameType = "CONNECT_RES"
	FrameStreamOpen      FrameType = "STREAM_OPEN"
)

// Frame is the envelope for control-plane messages. Frames are encoded as
// newline-delimited JSON so a reader can hand the rest of the stream over
// to raw proxying once the frame is consumed.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectRequest is the first frame an agent sends on its control stream.
type ConnectRequest struct {
	Token     string `json:"token"`
	Subdomain string `json:"subdomain,omitempty"`
}

// ConnectResponse confirms or rejects an agent's registration. On success
// URL carries the assigned public address.
type ConnectResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	URL   string `json:"url,omitempty"`
}

// StreamOpen is the first frame on a data stream, naming the tunnel the
// relayed connection belongs to.
type StreamOpen struct {
	Subdomain string `json:"subdomain"`
}

// WriteFrame encodes payload and writes it as a single frame.
func WriteFrame(w io.Writer, frameType FrameType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal frame payload: %w", err)
	}
	return json.NewEncoder(w).Encode(Frame{Type: frameType, Payload: raw})
}

// ReadFrame reads one frame and returns a reader positioned at the first
// byte after it. Data streams carry raw bytes after the frame, and the
// buffering here may have read ahead, so callers must continue from the
// returned reader rather than the original one.
func ReadFrame(r io.Reader) (*Frame, io.Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}

	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, nil, err
	}

	var frame Frame
	if err := json.Unmarshal(line, &frame); err != nil {
		return nil, nil, fmt.Errorf("decode frame: %w", err)
	}
	return &frame, br, nil
}

// DecodePayload unmarshals a frame's payload into dst, checking the frame
// type first.
func DecodePayload(frame *Frame, want FrameType, dst any) error {
	if frame.Type != want {
		return fmt.Errorf("unexpected frame type %q, want %q", frame.Type, want)
	}
	if err := json.Unmarshal(frame.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", want, err)
	}
	return nil
}
