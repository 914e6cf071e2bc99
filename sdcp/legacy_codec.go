package sdcp

import "github.com/elegoo-bridge/core/model"

// LegacyCodec implements Codec for CC1-and-older printers running in
// host-broker mode. The frame shape is identical to WebSocketCodec's — the
// same {Id, Data.Cmd, Data.Data, Data.RequestID} envelope, Topic field
// included — the only difference is that a MqttHostTransport carries these
// bytes over MQTT topics on a host-run broker instead of a raw WebSocket
// (spec.md §4.1, "Legacy-MQTT (CC1 and older)"). LegacyCodec is kept as its
// own named type, rather than a type alias, so Session can select codecs by
// concrete ProtocolKind without caring that two dialects happen to share an
// implementation today.
type LegacyCodec struct {
	inner WebSocketCodec
}

// NewLegacyCodec builds a LegacyCodec bound to a mainboard identity.
func NewLegacyCodec(mainboardID string) *LegacyCodec {
	return &LegacyCodec{inner: WebSocketCodec{MainboardID: mainboardID}}
}

func (c *LegacyCodec) EncodeCommand(cmd model.CommandEnvelope) ([]byte, error) {
	return c.inner.EncodeCommand(cmd)
}

func (c *LegacyCodec) DecodeFrame(data []byte) (Frame, error) {
	return c.inner.DecodeFrame(data)
}
