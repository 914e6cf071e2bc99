package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/elegoo-bridge/core/model"
)

// legacyPort is the UDP port the ASCII M99999 discovery dialect listens on.
const legacyPort = 3000

// legacyRequest is the literal payload printers answer to; it predates SDCP
// and is not JSON.
const legacyRequest = "M99999"

type legacyReply struct {
	Data struct {
		Attributes struct {
			Name            string `json:"Name"`
			MachineName     string `json:"MachineName"`
			MainboardIP     string `json:"MainboardIP"`
			MainboardID     string `json:"MainboardID"`
			ProtocolVersion string `json:"ProtocolVersion"`
			FirmwareVersion string `json:"FirmwareVersion"`
		} `json:"Attributes"`
	} `json:"Data"`
}

// discoverLegacy broadcasts M99999 on every local subnet and collects
// replies until ctx is done, returning whatever was gathered so far.
func discoverLegacy(ctx context.Context) ([]model.Identity, error) {
	addrs, err := broadcastAddresses()
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		found []model.Identity
		wg    sync.WaitGroup
	)

	for _, addr := range addrs {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()

			dst, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, legacyPort))
			if err != nil {
				return
			}
			conn, err := net.ListenUDP("udp4", nil)
			if err != nil {
				return
			}
			defer conn.Close()

			deadline, ok := ctx.Deadline()
			if !ok {
				deadline = time.Now().Add(5 * time.Second)
			}
			conn.SetDeadline(deadline)

			if _, err := conn.WriteTo([]byte(legacyRequest), dst); err != nil {
				return
			}

			buf := make([]byte, 4096)
			for {
				n, src, err := conn.ReadFromUDP(buf)
				if err != nil {
					return
				}

				var reply legacyReply
				if err := json.Unmarshal(buf[:n], &reply); err != nil {
					continue
				}
				attrs := reply.Data.Attributes
				if attrs.MainboardID == "" {
					continue
				}

				ip := attrs.MainboardIP
				if ip == "" {
					ip = src.IP.String()
				}

				id := model.Identity{
					Name:            attrs.Name,
					Model:           attrs.MachineName,
					Serial:          attrs.MainboardID,
					IPAddress:       ip,
					Firmware:        attrs.FirmwareVersion,
					ProtocolVersion: attrs.ProtocolVersion,
					ProtocolKind:    model.ProtocolWebSocketSDCP,
					PrinterFamily:  model.InferFamily(attrs.MachineName),
				}

				mu.Lock()
				found = append(found, id)
				mu.Unlock()
			}
		}(addr)
	}
	wg.Wait()

	return found, nil
}
