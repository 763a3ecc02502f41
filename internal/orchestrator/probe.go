package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Prober performs a single metadata-only request for the resource length.
type Prober interface {
	ContentLength(ctx context.Context, url string) (int64, error)
}

// ProbeSize asks p for the length of url up to maxAttempts times, retrying
// immediately after a failed attempt. It returns the first reported length.
func ProbeSize(ctx context.Context, p Prober, url string, maxAttempts int) (int64, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		size, err := p.ContentLength(ctx, url)
		if err == nil && size < 0 {
			err = fmt.Errorf("invalid content length %d", size)
		}
		if err == nil {
			return size, nil
		}
		lastErr = err
		log.Debug().Str("op", "orchestrator/probe").Err(err).Msgf("Size probe attempt %d/%d failed for %s", attempt, maxAttempts, url)
	}
	return 0, fmt.Errorf("%w after %d attempt(s): %v", ErrSizeNotAvailable, maxAttempts, lastErr)
}
