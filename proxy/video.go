package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"time"
)

// videoQueueSize is a ring of 2 JPEG frames per spec.md §4.6: video
// consumers only ever care about the latest frame or two, never a backlog.
const videoQueueSize = 2

// upstreamIdleGrace is how long the relay keeps the single upstream MJPEG
// connection open after the last downstream disconnects, in case another
// viewer reattaches immediately (spec.md §4.6).
const upstreamIdleGrace = 5 * time.Second

// VideoRelay fans one upstream MJPEG stream out to N downstream HTTP
// viewers, opening the upstream connection lazily on first attach and
// tearing it down upstreamIdleGrace after the last detach. Grounded on the
// pack's MJPEG reference handler (mime/multipart.Writer, per-part
// textproto.MIMEHeader, http.Flusher) for the downstream side; the
// upstream side reuses the same multipart machinery in reverse
// (mime/multipart.Reader) to consume the printer's own stream.
type VideoRelay struct {
	upstreamURL string
	logger      *slog.Logger

	mu        sync.Mutex
	viewers   map[*videoViewer]bool
	pumping   bool
	idleTimer *time.Timer
}

// NewVideoRelay builds a relay for the given upstream MJPEG URL (the
// printer's own `GET /?action=stream` endpoint, spec.md §9).
func NewVideoRelay(upstreamURL string) *VideoRelay {
	return &VideoRelay{
		upstreamURL: upstreamURL,
		logger:      slog.Default().With("component", "proxy_video"),
		viewers:     make(map[*videoViewer]bool),
	}
}

type videoViewer struct {
	frames chan []byte
}

// ServeHTTP attaches one downstream viewer: it writes a multipart MJPEG
// response and blocks until the viewer disconnects.
func (v *VideoRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	viewer := &videoViewer{frames: make(chan []byte, videoQueueSize)}
	v.attach(viewer)
	defer v.detach(viewer)

	mimeWriter := multipart.NewWriter(w)
	defer mimeWriter.Close()

	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace;boundary=%s", mimeWriter.Boundary()))
	w.Header().Set("Cache-Control", "no-store, no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-viewer.frames:
			if !ok {
				return
			}
			header := make(textproto.MIMEHeader)
			header.Set("Content-Type", "image/jpeg")
			part, err := mimeWriter.CreatePart(header)
			if err != nil {
				return
			}
			if _, err := part.Write(frame); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func (v *VideoRelay) attach(viewer *videoViewer) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.viewers[viewer] = true
	if v.idleTimer != nil {
		v.idleTimer.Stop()
		v.idleTimer = nil
	}
	if !v.pumping {
		v.pumping = true
		go v.pump()
	}
}

func (v *VideoRelay) detach(viewer *videoViewer) {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.viewers, viewer)
	if len(v.viewers) == 0 {
		v.idleTimer = time.AfterFunc(upstreamIdleGrace, func() {
			v.mu.Lock()
			if len(v.viewers) == 0 {
				v.pumping = false
			}
			v.mu.Unlock()
		})
	}
}

// pump holds the single upstream MJPEG connection and fans each frame out
// to every attached viewer, dropping frames for a viewer whose 2-frame ring
// is already full (video has no SlowConsumer eviction — late frames are
// simply superseded, never worth disconnecting a viewer over).
func (v *VideoRelay) pump() {
	for {
		v.mu.Lock()
		stillWanted := v.pumping
		v.mu.Unlock()
		if !stillWanted {
			return
		}

		if err := v.pumpOnce(); err != nil {
			v.logger.Warn("upstream mjpeg stream error", "error", err)
			time.Sleep(time.Second)
		}

		v.mu.Lock()
		done := !v.pumping
		v.mu.Unlock()
		if done {
			return
		}
	}
}

func (v *VideoRelay) pumpOnce() error {
	resp, err := http.Get(v.upstreamURL)
	if err != nil {
		return fmt.Errorf("mjpeg upstream get: %w", err)
	}
	defer resp.Body.Close()

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("mjpeg upstream content-type: %w", err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return fmt.Errorf("mjpeg upstream content-type missing boundary")
	}

	reader := multipart.NewReader(resp.Body, boundary)
	for {
		v.mu.Lock()
		stillWanted := v.pumping
		v.mu.Unlock()
		if !stillWanted {
			return nil
		}

		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("mjpeg upstream next part: %w", err)
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return fmt.Errorf("mjpeg upstream read part: %w", err)
		}

		v.fanOut(data)
	}
}

func (v *VideoRelay) fanOut(frame []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for viewer := range v.viewers {
		select {
		case viewer.frames <- frame:
		default:
			// Drop the oldest queued frame to make room for the newest one
			// rather than stalling the single upstream pump for one slow
			// viewer.
			select {
			case <-viewer.frames:
			default:
			}
			select {
			case viewer.frames <- frame:
			default:
			}
		}
	}
}
