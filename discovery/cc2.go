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

// cc2Port is the UDP port the CC2 JSON-RPC discovery dialect listens on.
const cc2Port = 52700

type cc2Request struct {
	ID     int `json:"id"`
	Method int `json:"method"`
}

type cc2Reply struct {
	Result struct {
		HostName     string `json:"host_name"`
		MachineModel string `json:"machine_model"`
		SN           string `json:"sn"`
		TokenStatus  int    `json:"token_status"`
		LanStatus    int    `json:"lan_status"`
	} `json:"result"`
}

// discoverCC2 broadcasts the CC2 discovery method (7000) on every local
// subnet and collects replies until ctx is done.
func discoverCC2(ctx context.Context) ([]model.Identity, error) {
	addrs, err := broadcastAddresses()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cc2Request{ID: 0, Method: 7000})
	if err != nil {
		return nil, fmt.Errorf("discovery: marshal cc2 probe: %w", err)
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

			dst, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, cc2Port))
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

			if _, err := conn.WriteTo(payload, dst); err != nil {
				return
			}

			buf := make([]byte, 4096)
			for {
				n, src, err := conn.ReadFromUDP(buf)
				if err != nil {
					return
				}

				var reply cc2Reply
				if err := json.Unmarshal(buf[:n], &reply); err != nil {
					continue
				}
				if reply.Result.SN == "" {
					continue
				}

				var capabilities []string
				if reply.Result.LanStatus == 0 {
					capabilities = append(capabilities, model.CapabilityCloudOnly)
				}

				id := model.Identity{
					Name:          reply.Result.HostName,
					Model:         reply.Result.MachineModel,
					Serial:        reply.Result.SN,
					IPAddress:     src.IP.String(),
					ProtocolKind:  model.ProtocolMqttCC2,
					PrinterFamily: model.InferFamily(reply.Result.MachineModel),
					Capabilities:  capabilities,
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
