package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elegoo-bridge/core/model"
)

type fakeUpstream struct {
	subCh   chan model.StatusSnapshot
	rawCh   chan []byte
	result  map[string]any
	lastRaw []byte
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		subCh:  make(chan model.StatusSnapshot, 4),
		rawCh:  make(chan []byte, 4),
		result: map[string]any{},
	}
}

func (f *fakeUpstream) Invoke(ctx context.Context, method int, params map[string]any) (model.ResponseEnvelope, error) {
	return model.ResponseEnvelope{Method: method, Result: f.result}, nil
}

func (f *fakeUpstream) Subscribe() <-chan model.StatusSnapshot { return f.subCh }
func (f *fakeUpstream) Snapshot() model.StatusSnapshot         { return model.StatusSnapshot{} }
func (f *fakeUpstream) SubscribeRaw() <-chan []byte            { return f.rawCh }
func (f *fakeUpstream) LastRawStatus() []byte                  { return f.lastRaw }


var _ Upstream = (*fakeUpstream)(nil)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_ForwardsInvokeAndRestoresRequestID(t *testing.T) {
	fu := newFakeUpstream()
	fu.result = map[string]any{"Name": "printer-a"}
	hub := NewHub(fu)
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	// Drain the initial snapshot push.
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	req := map[string]any{"Data": map[string]any{"Cmd": 1000, "RequestID": "abc123"}}
	require.NoError(t, conn.WriteJSON(req))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp downstreamResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, "abc123", resp.Data.RequestID)
	assert.Equal(t, "printer-a", resp.Data.Data["Name"])
}

func TestHub_BroadcastsStatusToEveryDownstream(t *testing.T) {
	fu := newFakeUpstream()
	hub := NewHub(fu)
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	raw := []byte(`{"Status":{"machine":{"status":"printing"}}}`)
	fu.rawCh <- raw

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	assert.JSONEq(t, string(raw), string(data))
}
