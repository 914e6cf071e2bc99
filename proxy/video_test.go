package proxy

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstreamMJPEGServer serves a single multipart MJPEG frame then blocks,
// standing in for a printer's video endpoint.
func fakeUpstreamMJPEGServer(t *testing.T, frame []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace;boundary=%s", mw.Boundary()))
		w.WriteHeader(http.StatusOK)

		header := make(textproto.MIMEHeader)
		header.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(frame)
		require.NoError(t, err)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		<-r.Context().Done()
	}))
}

func TestVideoRelay_FansSingleFrameToViewer(t *testing.T) {
	frame := []byte("fake-jpeg-bytes")
	upstream := fakeUpstreamMJPEGServer(t, frame)
	defer upstream.Close()

	relay := NewVideoRelay(upstream.URL)

	downstream := httptest.NewServer(http.HandlerFunc(relay.ServeHTTP))
	defer downstream.Close()

	resp, err := http.Get(downstream.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	reader := multipart.NewReader(bufio.NewReader(resp.Body), params["boundary"])

	part, err := reader.NextPart()
	require.NoError(t, err)
	data, err := io.ReadAll(part)
	require.NoError(t, err)
	assert.Equal(t, frame, data)
}

func TestVideoRelay_StopsPumpingAfterIdleGrace(t *testing.T) {
	relay := NewVideoRelay("http://127.0.0.1:0/unreachable")
	viewer := &videoViewer{frames: make(chan []byte, videoQueueSize)}

	relay.attach(viewer)
	relay.mu.Lock()
	pumping := relay.pumping
	relay.mu.Unlock()
	assert.True(t, pumping)

	relay.detach(viewer)
	time.Sleep(upstreamIdleGrace + 200*time.Millisecond)

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.False(t, relay.pumping)
}
