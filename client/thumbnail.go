package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/elegoo-bridge/core/perrors"
)

// fetchBytes downloads the thumbnail image the printer's GetThumbnail
// response points to. Thumbnails are served over plain HTTP from the
// printer itself, outside the SDCP command channel.
func fetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perrors.New(perrors.FileNotFound, err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, perrors.New(perrors.FileNotFound, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, perrors.New(perrors.FileNotFound, fmt.Errorf("thumbnail fetch %s: status %d", url, resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}
