// Package client provides Client, the printer connectivity façade: Identity
// plus a Session plus a Coordinator, selecting the transport and codec pair
// that match the printer's protocol dialect and mapping typed CommandKinds
// onto sdcp method codes. It is the generalized descendant of the teacher's
// printer.Client, with the polling responsibility split out into the
// coordinator package (spec.md §4.5).
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elegoo-bridge/core/coordinator"
	"github.com/elegoo-bridge/core/model"
	"github.com/elegoo-bridge/core/perrors"
	"github.com/elegoo-bridge/core/sdcp"
	"github.com/elegoo-bridge/core/session"
	"github.com/elegoo-bridge/core/transport"
)

// Default ports per spec.md §4.3/§9.
const (
	defaultWebSocketPort  = 3030
	defaultMqttPrinterPort = 1883
	defaultHostBrokerPort  = 1883

	invokeDeadline = 5 * time.Second
)

// Client is the single object host integrations talk to for one printer.
type Client struct {
	identity model.Identity
	logger   *slog.Logger

	session     *session.Session
	coordinator *coordinator.Coordinator

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds an unopened Client for the given identity.
func New(identity model.Identity) *Client {
	return &Client{
		identity: identity,
		logger:   slog.Default().With("printer", identity.Serial),
		stopCh:   make(chan struct{}),
	}
}

// Open builds the dialer/codec pair matching the identity's protocol
// dialect, opens the underlying session, and starts the status coordinator.
func (c *Client) Open(ctx context.Context, config model.ConnectionConfig) error {
	if c.identity.HasCapability(model.CapabilityCloudOnly) {
		return perrors.New(perrors.UnsupportedMode, fmt.Errorf("printer %s is cloud-only (CC2 lan_status=0)", c.identity.Serial))
	}

	dial, codec, err := c.buildTransport(config)
	if err != nil {
		return err
	}

	c.session = session.New(c.identity, dial, codec)
	if err := c.session.Open(ctx); err != nil {
		return err
	}

	c.coordinator = coordinator.New(c.session, 0)
	c.coordinator.Start()
	go c.watchTotalLayerRecovery()
	return nil
}

func (c *Client) buildTransport(config model.ConnectionConfig) (session.Dialer, sdcp.Codec, error) {
	switch c.identity.ProtocolKind {
	case model.ProtocolWebSocketSDCP:
		addr := fmt.Sprintf("%s:%d", c.identity.IPAddress, defaultWebSocketPort)
		dial := func() transport.Transport { return transport.NewWebSocketTransport(addr) }
		return dial, &sdcp.WebSocketCodec{MainboardID: c.identity.Serial}, nil

	case model.ProtocolMqttCC2:
		addr := fmt.Sprintf("%s:%d", c.identity.IPAddress, defaultMqttPrinterPort)
		dial := func() transport.Transport {
			return transport.NewMqttPrinterTransport(addr, c.identity.Serial, config.AccessCode)
		}
		return dial, &sdcp.CC2Codec{SerialNumber: c.identity.Serial}, nil

	case model.ProtocolMqttLegacy:
		listenAddr := fmt.Sprintf(":%d", defaultHostBrokerPort)
		dial := func() transport.Transport {
			return transport.NewMqttHostTransport(listenAddr, c.identity.Serial)
		}
		return dial, sdcp.NewLegacyCodec(c.identity.Serial), nil

	default:
		return nil, nil, perrors.New(perrors.UnsupportedMode, fmt.Errorf("unknown protocol dialect %q", c.identity.ProtocolKind))
	}
}

// Snapshot returns the most recently known status.
func (c *Client) Snapshot() model.StatusSnapshot {
	return c.coordinator.Snapshot()
}

// Subscribe returns a stream of changed snapshots.
func (c *Client) Subscribe() <-chan model.StatusSnapshot {
	return c.coordinator.Subscribe()
}

// SubscribeRaw returns a stream of raw upstream status frames, unmodified,
// for relays that must forward the printer's own wire bytes (spec.md §4.6).
func (c *Client) SubscribeRaw() <-chan []byte {
	return c.session.SubscribeRaw()
}

// LastRawStatus returns the most recent raw status frame, or nil.
func (c *Client) LastRawStatus() []byte {
	return c.session.LastRawStatus()
}

// State reports the underlying session's lifecycle state.
func (c *Client) State() model.SessionState {
	return c.session.State()
}

// Invoke sends a typed command and waits for its response, applying any
// dialect-specific parameter correction first (e.g. CC2's light-control
// brightness-to-power rewrite).
func (c *Client) Invoke(ctx context.Context, kind CommandKind, params map[string]any) (model.ResponseEnvelope, error) {
	method, ok := commandMethods[kind]
	if !ok {
		return model.ResponseEnvelope{}, perrors.New(perrors.ProtocolError, fmt.Errorf("unknown command kind %q", kind))
	}

	if kind == CmdSetLight && c.identity.ProtocolKind == model.ProtocolMqttCC2 {
		params = ccLightPowerParam(params)
	}

	ictx, cancel := context.WithTimeout(ctx, invokeDeadline)
	defer cancel()

	resp, err := c.session.Invoke(ictx, method, params)
	if err != nil {
		return model.ResponseEnvelope{}, err
	}
	return resp, nil
}

// watchTotalLayerRecovery watches every snapshot for the transition into
// PRINTING with total_layer still zero (spec.md §4.4), regardless of what
// triggered it — a CmdStartPrint from this client, a delta pushed after a
// print started on the touchscreen, or a reconnect mid-print. recoveredFor
// guards against re-firing on every subsequent snapshot of the same print.
func (c *Client) watchTotalLayerRecovery() {
	sub := c.Subscribe()
	var recoveredFor string
	for {
		select {
		case <-c.stopCh:
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			if snap.Machine.Status != model.MachineStatusPrinting {
				recoveredFor = ""
				continue
			}
			if snap.Print.Filename == "" || snap.Print.TotalLayer != 0 || snap.Print.Filename == recoveredFor {
				continue
			}
			recoveredFor = snap.Print.Filename
			c.recoverTotalLayerIfNeeded(context.Background())
		}
	}
}

// recoverTotalLayerIfNeeded implements spec.md §4.4's total-layer recovery:
// when a snapshot transitions to PRINTING with a filename but total_layer is
// still zero (common on CC2 deltas), fetch the file detail and backfill it.
func (c *Client) recoverTotalLayerIfNeeded(ctx context.Context) {
	snap := c.Snapshot()
	if snap.Machine.Status != model.MachineStatusPrinting || snap.Print.Filename == "" || snap.Print.TotalLayer != 0 {
		return
	}

	ictx, cancel := context.WithTimeout(ctx, invokeDeadline)
	defer cancel()
	resp, err := c.session.Invoke(ictx, sdcp.MethodGetFileDetail, map[string]any{"Filename": snap.Print.Filename})
	if err != nil {
		c.logger.Warn("total-layer recovery GetFileDetail failed", "error", err)
		return
	}

	total := intField(resp.Result, "TotalLayers")
	if total == 0 {
		total = intField(resp.Result, "layer")
	}
	if total == 0 {
		return
	}

	if _, err := c.session.RefreshStatus(ictx); err != nil {
		c.logger.Warn("total-layer recovery refresh failed", "error", err)
	}
}

func intField(m map[string]any, key string) int {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// FetchThumbnail retrieves a file's thumbnail bytes via GetThumbnail.
func (c *Client) FetchThumbnail(ctx context.Context, filename string) ([]byte, error) {
	ictx, cancel := context.WithTimeout(ctx, invokeDeadline)
	defer cancel()

	resp, err := c.session.Invoke(ictx, sdcp.MethodGetThumbnail, map[string]any{"Filename": filename})
	if err != nil {
		return nil, err
	}

	url, _ := resp.Result["Url"].(string)
	if url == "" {
		return nil, perrors.New(perrors.FileNotFound, fmt.Errorf("no thumbnail available for %q", filename))
	}
	return fetchBytes(ctx, url)
}

// Close stops the coordinator, the recovery watcher, and closes the
// underlying session.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.coordinator != nil {
		c.coordinator.Stop()
	}
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
