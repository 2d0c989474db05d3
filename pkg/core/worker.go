package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"swift2s3/pkg/dest"
	"swift2s3/pkg/integrity"
	"swift2s3/pkg/models"
	"swift2s3/pkg/pool"
	"swift2s3/pkg/staging"
)

// transferWorker moves a single object through its state machine:
// download, checksum, decide, upload or skip. Each instance exclusively owns
// the staged file for its key; the file is removed on every exit path.
type transferWorker struct {
	source    Source
	dest      Destination
	uploader  *RetryingUploader
	refresher *Refresher
	staging   *staging.Dir
	buffers   *pool.BufferPool
	container string
	bucket    string
	log       zerolog.Logger
}

// run processes one object and returns its terminal outcome. Failures are
// per-object and never propagate: the returned error string is recorded,
// logged and the batch continues.
func (w *transferWorker) run(ctx context.Context, obj models.SourceObject) (Outcome, error) {
	log := w.log.With().Str("key", obj.Key).Logger()

	if obj.IsDirectoryMarker() {
		return w.createMarker(ctx, obj, log)
	}

	path, err := w.staging.PathFor(obj.Key)
	if err != nil {
		return OutcomeFailed, err
	}

	// From here on the staged file must never outlive the worker,
	// whichever way it exits.
	defer func() {
		if err := w.staging.Discard(path); err != nil {
			log.Warn().Err(err).Msg("failed to discard staged file")
		}
	}()

	if err := w.download(ctx, obj.Key, path); err != nil {
		// Source read errors are terminal for this object, not retried.
		return OutcomeFailed, err
	}
	log.Debug().Str("staged", path).Msg("downloaded object")

	localDigest, err := integrity.FileMD5(path)
	if err != nil {
		return OutcomeFailed, err
	}

	remoteDigest, err := w.probeDigest(ctx, obj.Key)
	if err != nil {
		if dest.IsNotFound(err) {
			log.Info().Msg("object does not exist in destination, uploading")
			remoteDigest = ""
		} else {
			// A transient probe failure is terminal here: retry belongs to
			// the upload step, and the probe's failure most likely signals
			// the same condition an upload would hit.
			return OutcomeFailed, err
		}
	}

	if integrity.Decide(localDigest, remoteDigest) == integrity.UpToDate {
		log.Info().Msg("object is up to date in destination, skipping upload")
		return OutcomeSkippedUpToDate, nil
	}

	if remoteDigest != "" {
		log.Info().Msg("object exists but has changed, overwriting")
	}

	if err := w.uploader.Upload(ctx, obj.Key, path); err != nil {
		return OutcomeFailed, err
	}

	return OutcomeUploaded, nil
}

// createMarker mirrors a directory placeholder: no download, a zero-byte
// object at the same key.
func (w *transferWorker) createMarker(ctx context.Context, obj models.SourceObject, log zerolog.Logger) (Outcome, error) {
	err := w.refresher.Do(ctx, func() error {
		return w.dest.PutMarker(ctx, w.bucket, obj.Key)
	})
	if err != nil {
		return OutcomeFailed, err
	}

	log.Info().Msg("created directory structure in destination")
	return OutcomeMarkerCreated, nil
}

func (w *transferWorker) download(ctx context.Context, key, path string) error {
	body, err := w.source.Download(ctx, w.container, key)
	if err != nil {
		return err
	}
	defer body.Close()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create staged file for %s: %w", key, err)
	}

	buf := w.buffers.Get()
	defer w.buffers.Put(buf)

	_, err = io.CopyBuffer(file, body, buf)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", key, err)
	}

	return nil
}

func (w *transferWorker) probeDigest(ctx context.Context, key string) (string, error) {
	var digest string

	err := w.refresher.Do(ctx, func() error {
		d, err := w.dest.HeadDigest(ctx, w.bucket, key)
		if err != nil {
			return err
		}
		digest = d
		return nil
	})

	return digest, err
}
