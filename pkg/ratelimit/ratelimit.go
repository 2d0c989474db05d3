// Package ratelimit exposes rate limited io implementations used to cap the
// aggregate upload bandwidth of a transfer run. All workers share one
// *rate.Limiter, so the configured limit is a ceiling across the whole run,
// not per object.
package ratelimit

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"
)

// NewLimiter returns a limiter allowing bytesPerSec with a burst of one
// second's worth of tokens.
func NewLimiter(bytesPerSec int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
}

// Reader wraps an io.Reader, using its limiter as a rate limit on the number
// of bytes read.
type Reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// NewReader creates a Reader which respects "limiter" in terms of the number
// of bytes read.
func NewReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) *Reader {
	return &Reader{ctx: ctx, r: r, limiter: limiter}
}

// Read will read into p whilst respecting the rate limit.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n <= 0 {
		return n, err
	}

	if lErr := waitChunked(r.ctx, r.limiter, n); lErr != nil {
		return n, lErr
	}

	return n, err
}

// waitChunked waits for n tokens in chunks of the limiter's burst size. The
// limiter will only allow at most its burst number of tokens to be drained at
// once, so waiting for more requires several calls.
func waitChunked(ctx context.Context, limiter *rate.Limiter, n int) error {
	maxChunkSize := limiter.Burst()

	for n > 0 {
		waitFor := min(n, maxChunkSize)
		if err := limiter.WaitN(ctx, waitFor); err != nil {
			return fmt.Errorf("could not wait for limiter: %w", err)
		}

		n -= waitFor
	}

	return nil
}

var _ io.Reader = (*Reader)(nil)
