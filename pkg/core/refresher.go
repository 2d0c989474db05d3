package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"swift2s3/pkg/config"
	"swift2s3/pkg/dest"
)

// Refresher funnels all credential-expiry handling through one place. However
// many workers hit an expired token at the same time, the credential source
// is consulted once: the first caller refreshes while the rest block on the
// mutex, observe the bumped generation, and simply retry their call.
type Refresher struct {
	mu         sync.Mutex
	source     config.CredentialSource
	dest       Destination
	generation uint64
	log        zerolog.Logger
}

// NewRefresher wires a credential source to the destination it rebuilds. The
// source may be nil, in which case expiry becomes a terminal error — the
// right behavior for unattended runs, which cannot answer a prompt.
func NewRefresher(source config.CredentialSource, destination Destination, log zerolog.Logger) *Refresher {
	return &Refresher{source: source, dest: destination, log: log}
}

// Generation returns the current credential generation.
func (r *Refresher) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Refresh obtains new credentials and rebuilds the destination client, unless
// another caller already did so since seenGeneration was observed.
func (r *Refresher) Refresh(ctx context.Context, seenGeneration uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.generation != seenGeneration {
		// Another worker refreshed while we waited; retry with the new client.
		return nil
	}

	if r.source == nil {
		return fmt.Errorf("credentials expired and no credential source is configured")
	}

	r.log.Warn().Msg("AWS session expired, requesting new credentials")

	creds, err := r.source.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh credentials: %w", err)
	}

	if err := r.dest.Rebuild(ctx, creds); err != nil {
		return fmt.Errorf("failed to rebuild destination client: %w", err)
	}

	r.generation++
	r.log.Info().Msg("destination client rebuilt with refreshed credentials")

	return nil
}

// Do runs op, refreshing credentials and retrying whenever it fails with
// ErrCredentialsExpired. Expiry does not consume any retry budget; any other
// result, success or failure, is returned as is.
func (r *Refresher) Do(ctx context.Context, op func() error) error {
	for {
		gen := r.Generation()

		err := op()
		if err == nil || !errors.Is(err, dest.ErrCredentialsExpired) {
			return err
		}

		if refreshErr := r.Refresh(ctx, gen); refreshErr != nil {
			return refreshErr
		}
	}
}
