package sdcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elegoo-bridge/core/model"
)

func TestCC2Codec_EncodeCommand(t *testing.T) {
	codec := &CC2Codec{SerialNumber: "SN123"}
	out, err := codec.EncodeCommand(model.CommandEnvelope{
		RequestID: 1,
		Method:    MethodSetLight,
		Params:    map[string]any{LightPowerParam: 100},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"method":1041,"params":{"power":100}}`, string(out))
}

func TestCC2Codec_DecodeFrame(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus bool
		wantErr    int
	}{
		{
			name:       "status push via method 6000",
			payload:    `{"id":0,"method":6000,"result":{"LastUpdateId":11,"Machine":{"Status":"idle"}}}`,
			wantStatus: true,
		},
		{
			name:    "response with explicit code",
			payload: `{"id":5,"method":1010,"code":2,"result":{}}`,
			wantErr: 2,
		},
		{
			name:    "response with success code defaulted",
			payload: `{"id":6,"method":1000,"result":{"Name":"printer"}}`,
			wantErr: 0,
		},
	}

	codec := &CC2Codec{SerialNumber: "SN123"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := codec.DecodeFrame([]byte(tt.payload))
			require.NoError(t, err)

			if tt.wantStatus {
				require.True(t, frame.IsStatus())
				assert.Equal(t, uint64(11), frame.Status.LastUpdateID)
				return
			}
			require.True(t, frame.IsResponse())
			assert.Equal(t, tt.wantErr, frame.Response.ErrorCode)
		})
	}
}
