package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestWebSocketTransport_SendAndReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, append([]byte("echo:"), msg...)))

		time.Sleep(20 * time.Millisecond)
	}))
	defer server.Close()

	addr := strings.TrimPrefix(server.URL, "http://")
	tr := NewWebSocketTransport(addr)
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	require.NoError(t, tr.Send([]byte("hello")))

	select {
	case got := <-tr.Frames():
		require.Equal(t, "echo:hello", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed frame")
	}
}

func TestWebSocketTransport_RejectsBinaryFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
		time.Sleep(20 * time.Millisecond)
	}))
	defer server.Close()

	addr := strings.TrimPrefix(server.URL, "http://")
	tr := NewWebSocketTransport(addr)
	require.NoError(t, tr.Open(context.Background()))
	defer tr.Close()

	select {
	case _, ok := <-tr.Frames():
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frames channel to close")
	}
	require.Error(t, tr.Err())
}
