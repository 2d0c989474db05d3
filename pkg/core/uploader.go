package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrRetriesExhausted is returned when an upload failed on every attempt.
// The caller records the object as failed and the batch continues; exhaustion
// never aborts sibling transfers.
var ErrRetriesExhausted = errors.New("upload retries exhausted")

// RetryingUploader wraps single upload attempts with a bounded retry budget,
// exponential backoff and credential-refresh handling.
type RetryingUploader struct {
	dest        Destination
	refresher   *Refresher
	bucket      string
	maxAttempts int
	backoffUnit time.Duration
	maxBackoff  time.Duration
	log         zerolog.Logger

	// sleep is replaceable so tests can observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryingUploader builds an uploader against one destination bucket.
func NewRetryingUploader(
	destination Destination,
	refresher *Refresher,
	bucket string,
	opts Options,
	log zerolog.Logger,
) *RetryingUploader {
	opts = opts.withDefaults()

	return &RetryingUploader{
		dest:        destination,
		refresher:   refresher,
		bucket:      bucket,
		maxAttempts: opts.MaxAttempts,
		backoffUnit: opts.BackoffUnit,
		maxBackoff:  opts.MaxBackoff,
		log:         log,
		sleep:       sleepCtx,
	}
}

// Upload attempts to put the staged file at key, retrying generic failures
// with exponential backoff (2, 4, 8, ... time-units, capped). Credential
// expiry routes through the shared refresher and does not consume an
// attempt. Returns ErrRetriesExhausted once the budget is spent.
func (u *RetryingUploader) Upload(ctx context.Context, key, localPath string) error {
	attempt := 0

	for attempt < u.maxAttempts {
		err := u.refresher.Do(ctx, func() error {
			return u.dest.Upload(ctx, u.bucket, key, localPath)
		})
		if err == nil {
			u.log.Info().Str("key", key).Int("attempt", attempt+1).Msg("uploaded successfully")
			return nil
		}

		attempt++
		u.log.Error().Err(err).Str("key", key).
			Int("attempt", attempt).Int("max_attempts", u.maxAttempts).
			Msg("upload attempt failed")

		if attempt >= u.maxAttempts {
			break
		}

		if sleepErr := u.sleep(ctx, u.backoffDelay(attempt)); sleepErr != nil {
			return sleepErr
		}
	}

	return ErrRetriesExhausted
}

// backoffDelay returns 2^attempt time-units, capped at the configured
// ceiling so high attempt counts cannot turn into unbounded sleeps.
func (u *RetryingUploader) backoffDelay(attempt int) time.Duration {
	delay := u.backoffUnit * (1 << attempt)
	if delay > u.maxBackoff || delay <= 0 {
		delay = u.maxBackoff
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
