package sdcp

import "github.com/elegoo-bridge/core/model"

// NewCodec builds the Codec appropriate for a printer's ProtocolKind.
func NewCodec(kind model.ProtocolKind, mainboardID, serial string) Codec {
	switch kind {
	case model.ProtocolMqttCC2:
		return &CC2Codec{SerialNumber: serial}
	case model.ProtocolMqttLegacy:
		return NewLegacyCodec(mainboardID)
	default:
		return &WebSocketCodec{MainboardID: mainboardID}
	}
}
