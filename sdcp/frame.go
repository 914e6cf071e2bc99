package sdcp

import "github.com/elegoo-bridge/core/model"

// Frame is what a Codec produces when it decodes a raw wire message: either a
// ResponseEnvelope (reply to something the core sent) or a StatusEvent
// (unsolicited status push), never both. Transport readers hand raw bytes to
// a Codec and get back a Frame to route — the sdcp analogue of the teacher's
// sacp.Packet, generalized from one binary shape to three JSON ones.
type Frame struct {
	Response *model.ResponseEnvelope
	Status   *model.StatusEvent

	// Raw preserves the fully decoded generic object for diagnostics and for
	// codecs that need to re-derive dialect-specific fields (e.g. the legacy
	// MQTT topic a frame arrived on).
	Raw map[string]any
}

// IsResponse reports whether the frame carries a command response.
func (f Frame) IsResponse() bool { return f.Response != nil }

// IsStatus reports whether the frame carries a status push.
func (f Frame) IsStatus() bool { return f.Status != nil }

// Codec translates between the canonical CommandEnvelope/ResponseEnvelope
// shape and one wire dialect's byte representation. Three concrete codecs
// (WebSocketCodec, CC2Codec, LegacyCodec) implement it; Session and Transport
// only ever see the canonical shapes.
type Codec interface {
	// EncodeCommand serializes a command envelope to wire bytes.
	EncodeCommand(cmd model.CommandEnvelope) ([]byte, error)

	// DecodeFrame parses one inbound wire message into a Frame. Unknown
	// top-level fields are preserved in Frame.Raw so forward-compatible
	// additions survive even when this codec doesn't recognize them.
	DecodeFrame(data []byte) (Frame, error)
}
