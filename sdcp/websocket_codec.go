package sdcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elegoo-bridge/core/model"
)

// statusTopicPrefix is the topic prefix status pushes arrive on over the
// WebSocket-SDCP dialect: "sdcp/status/<mainboardId>" (spec.md §4.1).
const statusTopicPrefix = "sdcp/status/"

// WebSocketCodec implements Codec for the newer FDM/resin WebSocket-SDCP
// dialect: a single full-duplex JSON stream, envelope {Id, Data.Cmd,
// Data.Data, Data.RequestID}, with status pushes tagged by topic.
type WebSocketCodec struct {
	// MainboardID is embedded in outbound envelopes and used to recognize
	// this printer's own status topic among (theoretically) multiple.
	MainboardID string
}

type wsEnvelope struct {
	Id    string          `json:"Id"`
	Data  wsData          `json:"Data"`
	Topic string          `json:"Topic,omitempty"`
}

type wsData struct {
	Cmd         int             `json:"Cmd"`
	Data        json.RawMessage `json:"Data,omitempty"`
	RequestID   string          `json:"RequestID"`
	MainboardID string          `json:"MainboardID,omitempty"`
	TimeStamp   int64           `json:"TimeStamp,omitempty"`
}

func (c *WebSocketCodec) EncodeCommand(cmd model.CommandEnvelope) ([]byte, error) {
	payload, err := json.Marshal(cmd.Params)
	if err != nil {
		return nil, fmt.Errorf("sdcp websocket: marshal params: %w", err)
	}

	env := wsEnvelope{
		Id: c.MainboardID,
		Data: wsData{
			Cmd:         cmd.Method,
			Data:        payload,
			RequestID:   strconv.FormatUint(cmd.RequestID, 10),
			MainboardID: c.MainboardID,
			TimeStamp:   cmd.IssuedAt.Unix(),
		},
	}
	return json.Marshal(env)
}

func (c *WebSocketCodec) DecodeFrame(data []byte) (Frame, error) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Frame{}, fmt.Errorf("sdcp websocket: decode: %w", err)
	}

	var raw map[string]any
	_ = json.Unmarshal(data, &raw) // best-effort: preserved for diagnostics/forward-compat

	if strings.HasPrefix(env.Topic, statusTopicPrefix) {
		return decodeWebSocketStatus(env, raw)
	}
	return decodeWebSocketResponse(env, raw)
}

func decodeWebSocketStatus(env wsEnvelope, raw map[string]any) (Frame, error) {
	var tree map[string]any
	if len(env.Data.Data) > 0 {
		if err := json.Unmarshal(env.Data.Data, &tree); err != nil {
			return Frame{}, fmt.Errorf("sdcp websocket: decode status tree: %w", err)
		}
	}

	lastUpdateID := extractLastUpdateID(tree, uint64(env.Data.TimeStamp))

	return Frame{
		Status: &model.StatusEvent{LastUpdateID: lastUpdateID, Tree: tree},
		Raw:    raw,
	}, nil
}

func decodeWebSocketResponse(env wsEnvelope, raw map[string]any) (Frame, error) {
	var result map[string]any
	if len(env.Data.Data) > 0 {
		if err := json.Unmarshal(env.Data.Data, &result); err != nil {
			return Frame{}, fmt.Errorf("sdcp websocket: decode result: %w", err)
		}
	}

	reqID, _ := strconv.ParseUint(env.Data.RequestID, 10, 64)
	errorCode := extractErrorCode(result)

	return Frame{
		Response: &model.ResponseEnvelope{
			RequestID: reqID,
			Method:    env.Data.Cmd,
			ErrorCode: errorCode,
			Result:    result,
		},
		Raw: raw,
	}, nil
}

// extractLastUpdateID pulls a sequence number out of a decoded status tree.
// Firmware is not consistent about the field name used, so several are
// tried before falling back to the envelope timestamp.
func extractLastUpdateID(tree map[string]any, fallback uint64) uint64 {
	for _, key := range []string{"LastUpdateId", "lastUpdateId", "last_update_id", "MsgId"} {
		if v, ok := tree[key]; ok {
			if n, ok := toUint64(v); ok {
				return n
			}
		}
	}
	return fallback
}

// extractErrorCode pulls the 0-means-success error code out of a decoded
// result object, defaulting to 0 (success) when absent.
func extractErrorCode(result map[string]any) int {
	for _, key := range []string{"Ack", "errorCode", "error_code", "code"} {
		if v, ok := result[key]; ok {
			if n, ok := toUint64(v); ok {
				return int(n)
			}
		}
	}
	return 0
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		return uint64(n), true
	case int:
		return uint64(n), true
	case int64:
		return uint64(n), true
	case uint64:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return uint64(i), true
		}
	}
	return 0, false
}
