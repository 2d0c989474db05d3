package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swift2s3/pkg/config"
	"swift2s3/pkg/dest"
)

// flakyDest fails a configurable number of uploads before succeeding.
type flakyDest struct {
	*fakeDest
	failures int
	attempts int
}

func (f *flakyDest) Upload(ctx context.Context, bucket, key, localPath string) error {
	f.attempts++
	if f.attempts <= f.failures {
		return fmt.Errorf("transient failure %d", f.attempts)
	}
	return f.fakeDest.Upload(ctx, bucket, key, localPath)
}

func stagedFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestUploader(d Destination, creds config.CredentialSource) (*RetryingUploader, *[]time.Duration) {
	refresher := NewRefresher(creds, d, zerolog.Nop())
	uploader := NewRetryingUploader(d, refresher, "bucket", Options{
		MaxAttempts: 3,
		BackoffUnit: time.Second,
		MaxBackoff:  30 * time.Second,
	}, zerolog.Nop())

	sleeps := &[]time.Duration{}
	uploader.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}

	return uploader, sleeps
}

func TestUploadSucceedsFirstAttempt(t *testing.T) {
	d := &flakyDest{fakeDest: newFakeDest()}
	uploader, sleeps := newTestUploader(d, nil)

	err := uploader.Upload(context.Background(), "a.txt", stagedFile(t, "content"))
	require.NoError(t, err)
	assert.Equal(t, 1, d.attempts)
	assert.Empty(t, *sleeps)
}

func TestUploadRetriesWithIncreasingBackoff(t *testing.T) {
	d := &flakyDest{fakeDest: newFakeDest(), failures: 2}
	uploader, sleeps := newTestUploader(d, nil)

	err := uploader.Upload(context.Background(), "a.txt", stagedFile(t, "content"))
	require.NoError(t, err)

	// Two failures then success: exactly three attempts, two backoff sleeps
	// of increasing duration.
	assert.Equal(t, 3, d.attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *sleeps)
}

func TestUploadExhaustsRetries(t *testing.T) {
	d := &flakyDest{fakeDest: newFakeDest(), failures: 100}
	uploader, sleeps := newTestUploader(d, nil)

	err := uploader.Upload(context.Background(), "a.txt", stagedFile(t, "content"))
	require.ErrorIs(t, err, ErrRetriesExhausted)

	// Exactly maxAttempts attempts, no sleep after the final one.
	assert.Equal(t, 3, d.attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *sleeps)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	uploader := NewRetryingUploader(newFakeDest(), NewRefresher(nil, newFakeDest(), zerolog.Nop()),
		"bucket", Options{MaxAttempts: 20, BackoffUnit: time.Second, MaxBackoff: 30 * time.Second}, zerolog.Nop())

	assert.Equal(t, 2*time.Second, uploader.backoffDelay(1))
	assert.Equal(t, 16*time.Second, uploader.backoffDelay(4))
	assert.Equal(t, 30*time.Second, uploader.backoffDelay(5))
	assert.Equal(t, 30*time.Second, uploader.backoffDelay(19))
	// The shift overflows long before this; the cap must still hold.
	assert.Equal(t, 30*time.Second, uploader.backoffDelay(64))
}

func TestUploadCredentialExpiryDoesNotConsumeAttempts(t *testing.T) {
	d := newFakeDest()
	d.expireUploads = true

	creds := &fakeCredentialSource{}
	uploader, sleeps := newTestUploader(d, creds)

	err := uploader.Upload(context.Background(), "a.txt", stagedFile(t, "content"))
	require.NoError(t, err)

	// The expired attempt triggered one refresh and one client rebuild, then
	// the same attempt ran again; no backoff was involved.
	assert.Equal(t, 1, creds.calls)
	assert.Equal(t, 1, d.rebuilds)
	assert.Equal(t, 1, d.uploads)
	assert.Empty(t, *sleeps)
}

func TestUploadExpiryWithoutCredentialSourceFails(t *testing.T) {
	d := newFakeDest()
	d.expireUploads = true

	uploader, _ := newTestUploader(d, nil)

	err := uploader.Upload(context.Background(), "a.txt", stagedFile(t, "content"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, dest.ErrCredentialsExpired)
	assert.Equal(t, 0, d.uploads)
}

func TestRefresherSingleFlight(t *testing.T) {
	d := newFakeDest()
	creds := &fakeCredentialSource{}
	refresher := NewRefresher(creds, d, zerolog.Nop())

	// Both callers observed the same generation before the expiry; only the
	// first refresh actually consults the credential source.
	gen := refresher.Generation()
	require.NoError(t, refresher.Refresh(context.Background(), gen))
	require.NoError(t, refresher.Refresh(context.Background(), gen))

	assert.Equal(t, 1, creds.calls)
	assert.Equal(t, 1, d.rebuilds)
}

func TestRefresherDoPassesThroughOtherErrors(t *testing.T) {
	refresher := NewRefresher(&fakeCredentialSource{}, newFakeDest(), zerolog.Nop())

	sentinel := errors.New("unrelated failure")
	err := refresher.Do(context.Background(), func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}
