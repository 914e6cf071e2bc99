package sdcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elegoo-bridge/core/model"
)

func TestWebSocketCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec := &WebSocketCodec{MainboardID: "mb-1"}

	cmd := model.CommandEnvelope{
		RequestID: 42,
		Method:    MethodGetStatus,
		Params:    map[string]any{"foo": "bar"},
		IssuedAt:  time.Unix(1000, 0),
	}

	encoded, err := codec.EncodeCommand(cmd)
	require.NoError(t, err)

	frame, err := codec.DecodeFrame(encoded)
	require.NoError(t, err)
	require.True(t, frame.IsResponse())
	assert.Equal(t, uint64(42), frame.Response.RequestID)
	assert.Equal(t, MethodGetStatus, frame.Response.Method)
	assert.Equal(t, 0, frame.Response.ErrorCode)
}

func TestWebSocketCodec_DecodeFrame(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus bool
		wantSeq    uint64
		wantErr    int
	}{
		{
			name:       "status push on status topic",
			payload:    `{"Id":"mb-1","Topic":"sdcp/status/mb-1","Data":{"Cmd":6000,"Data":{"LastUpdateId":7,"Machine":{"Status":"printing"}}}}`,
			wantStatus: true,
			wantSeq:    7,
		},
		{
			name:    "response with Ack error code",
			payload: `{"Id":"mb-1","Data":{"Cmd":1010,"RequestID":"5","Data":{"Ack":3}}}`,
			wantErr: 3,
		},
		{
			name:    "response with no result still decodes",
			payload: `{"Id":"mb-1","Data":{"Cmd":1000,"RequestID":"9"}}`,
			wantErr: 0,
		},
	}

	codec := &WebSocketCodec{MainboardID: "mb-1"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := codec.DecodeFrame([]byte(tt.payload))
			require.NoError(t, err)

			if tt.wantStatus {
				require.True(t, frame.IsStatus())
				assert.Equal(t, tt.wantSeq, frame.Status.LastUpdateID)
				return
			}
			require.True(t, frame.IsResponse())
			assert.Equal(t, tt.wantErr, frame.Response.ErrorCode)
		})
	}
}

func TestWebSocketCodec_UnknownFieldsPreservedInRaw(t *testing.T) {
	codec := &WebSocketCodec{MainboardID: "mb-1"}
	frame, err := codec.DecodeFrame([]byte(`{"Id":"mb-1","FutureField":"keep-me","Data":{"Cmd":1000,"RequestID":"1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "keep-me", frame.Raw["FutureField"])
}
