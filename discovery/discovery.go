package discovery

import (
	"context"
	"time"

	"github.com/elegoo-bridge/core/model"
	"github.com/elegoo-bridge/core/perrors"
)

// Discover runs both broadcast dialects concurrently and returns the
// deduplicated union of identities found within timeout. A context deadline
// shorter than timeout wins; Discover always returns whatever it gathered
// before either deadline, even on a context cancellation, rather than
// discarding partial results.
func Discover(ctx context.Context, timeout time.Duration) ([]model.Identity, error) {
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		ids []model.Identity
	}
	legacyCh := make(chan result, 1)
	cc2Ch := make(chan result, 1)

	go func() {
		ids, _ := discoverLegacy(dctx)
		legacyCh <- result{ids: ids}
	}()
	go func() {
		ids, _ := discoverCC2(dctx)
		cc2Ch <- result{ids: ids}
	}()

	legacy := <-legacyCh
	cc2 := <-cc2Ch

	merged := dedupe(append(legacy.ids, cc2.ids...))
	if len(merged) == 0 {
		return nil, perrors.New(perrors.DiscoveryEmpty, nil)
	}
	return merged, nil
}

// dedupe collapses identities by Serial, keeping the first occurrence seen
// (legacy results are appended before CC2 results, so a printer answering
// both dialects keeps its legacy-derived identity).
func dedupe(ids []model.Identity) []model.Identity {
	seen := map[string]bool{}
	out := make([]model.Identity, 0, len(ids))
	for _, id := range ids {
		if id.Serial == "" || seen[id.Serial] {
			continue
		}
		seen[id.Serial] = true
		out = append(out, id)
	}
	return out
}
