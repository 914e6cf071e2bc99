package sdcp

import (
	"encoding/json"
	"fmt"

	"github.com/elegoo-bridge/core/model"
)

// cc2StatusMethod is the method code the printer uses when pushing an
// unsolicited status event over the inverted-broker CC2 dialect.
const cc2StatusMethod = MethodStatusEvent

// CC2Codec implements Codec for the CC2 inverted-broker MQTT dialect: the
// printer hosts the broker, frames are flat {id,method,params}/{id,method,result}
// objects (no nested Data wrapper), and status pushes arrive as method 6000
// on the "elegoo/<sn>/api_status" topic.
type CC2Codec struct {
	SerialNumber string
}

type cc2Request struct {
	ID     uint64         `json:"id"`
	Method int            `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type cc2Reply struct {
	ID     uint64         `json:"id"`
	Method int            `json:"method"`
	Result map[string]any `json:"result,omitempty"`
	Code   *int           `json:"code,omitempty"`
}

func (c *CC2Codec) EncodeCommand(cmd model.CommandEnvelope) ([]byte, error) {
	req := cc2Request{
		ID:     cmd.RequestID,
		Method: cmd.Method,
		Params: cmd.Params,
	}
	out, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("sdcp cc2: encode: %w", err)
	}
	return out, nil
}

func (c *CC2Codec) DecodeFrame(data []byte) (Frame, error) {
	var reply cc2Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return Frame{}, fmt.Errorf("sdcp cc2: decode: %w", err)
	}

	var raw map[string]any
	_ = json.Unmarshal(data, &raw)

	if reply.Method == cc2StatusMethod {
		lastUpdateID := extractLastUpdateID(reply.Result, reply.ID)
		return Frame{
			Status: &model.StatusEvent{LastUpdateID: lastUpdateID, Tree: reply.Result},
			Raw:    raw,
		}, nil
	}

	errorCode := 0
	if reply.Code != nil {
		errorCode = *reply.Code
	} else {
		errorCode = extractErrorCode(reply.Result)
	}

	return Frame{
		Response: &model.ResponseEnvelope{
			RequestID: reply.ID,
			Method:    reply.Method,
			ErrorCode: errorCode,
			Result:    reply.Result,
		},
		Raw: raw,
	}, nil
}
