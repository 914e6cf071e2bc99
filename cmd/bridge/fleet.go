package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/elegoo-bridge/core/client"
	"github.com/elegoo-bridge/core/config"
	"github.com/elegoo-bridge/core/model"
	"github.com/elegoo-bridge/core/proxy"
)

// fleet owns every configured printer's client and, if enabled, its proxy
// HTTP server.
type fleet struct {
	printers []*printerHandle
}

type printerHandle struct {
	client  *client.Client
	proxy   *proxyServer
}

type proxyServer struct {
	hub       *proxy.Hub
	http      *http.Server
	videoHTTP *http.Server
}

func openFleet(ctx context.Context, cfg *config.Config) (*fleet, error) {
	f := &fleet{}

	for _, dc := range cfg.Devices {
		identity := model.Identity{
			Name:         dc.Name,
			Serial:       dc.Serial,
			IPAddress:    dc.IPAddress,
			ProtocolKind: model.ProtocolKind(dc.ProtocolKind),
		}

		c := client.New(identity)
		connCfg := model.ConnectionConfig{
			Identity:       identity,
			ProxyEnabled:   dc.ProxyEnabled,
			ProxyWsPort:    dc.ProxyWsPort,
			ProxyVideoPort: dc.ProxyVideoPort,
			AccessCode:     dc.AccessCode,
		}

		if err := c.Open(ctx, connCfg); err != nil {
			f.Close()
			return nil, fmt.Errorf("opening printer %s: %w", dc.Serial, err)
		}

		handle := &printerHandle{client: c}

		if dc.ProxyEnabled {
			ps, err := startProxy(c, dc)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("starting proxy for %s: %w", dc.Serial, err)
			}
			handle.proxy = ps
		}

		f.printers = append(f.printers, handle)
	}

	return f, nil
}

// printerVideoPort is where the printer itself serves its MJPEG stream
// (spec.md §9: `GET /?action=stream` on :8080).
const printerVideoPort = 8080

func startProxy(c *client.Client, dc config.DeviceConfig) (*proxyServer, error) {
	hub := proxy.NewHub(c)
	hub.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", hub.HandleWebSocket)

	wsAddr := fmt.Sprintf(":%d", dc.ProxyWsPort)
	wsSrv := &http.Server{Addr: wsAddr, Handler: mux}
	go serveOrLog(wsSrv, dc.Serial, "control")

	upstreamVideoURL := fmt.Sprintf("http://%s:%d/?action=stream", dc.IPAddress, printerVideoPort)
	relay := proxy.NewVideoRelay(upstreamVideoURL)
	videoAddr := fmt.Sprintf(":%d", dc.ProxyVideoPort)
	videoSrv := &http.Server{Addr: videoAddr, Handler: http.HandlerFunc(relay.ServeHTTP)}
	go serveOrLog(videoSrv, dc.Serial, "video")

	return &proxyServer{hub: hub, http: wsSrv, videoHTTP: videoSrv}, nil
}

func serveOrLog(srv *http.Server, serial, plane string) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Default().Error("proxy http server failed", "serial", serial, "plane", plane, "error", err)
	}
}

func (f *fleet) Close() {
	for _, p := range f.printers {
		if p.proxy != nil {
			p.proxy.hub.Stop()
			_ = p.proxy.http.Close()
			_ = p.proxy.videoHTTP.Close()
		}
		if p.client != nil {
			_ = p.client.Close()
		}
	}
}
