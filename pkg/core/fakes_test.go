package core

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"swift2s3/pkg/config"
	"swift2s3/pkg/dest"
	"swift2s3/pkg/models"
)

// fakeSource is an in-memory Swift container.
type fakeSource struct {
	mu       sync.Mutex
	objects  map[string][]byte
	listErr  error
	failKeys map[string]error // keys whose download fails

	downloads int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		objects:  make(map[string][]byte),
		failKeys: make(map[string]error),
	}
}

func (f *fakeSource) put(key string, content []byte) {
	f.objects[key] = content
}

func (f *fakeSource) List(_ context.Context, _ string) ([]models.SourceObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]models.SourceObject, 0, len(keys))
	for _, key := range keys {
		result = append(result, models.SourceObject{
			Key:  key,
			Size: int64(len(f.objects[key])),
		})
	}

	return result, nil
}

func (f *fakeSource) Download(_ context.Context, _ string, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failKeys[key]; ok {
		return nil, err
	}

	content, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object %s", key)
	}

	f.downloads++

	return io.NopCloser(bytes.NewReader(content)), nil
}

// fakeDest is an in-memory S3 bucket keyed by object key, storing the MD5 of
// whatever was uploaded as its ETag.
type fakeDest struct {
	mu      sync.Mutex
	objects map[string]models.RemoteObject

	bucketMissing bool
	listErr       error
	headErr       map[string]error // non-not-found probe failures per key
	uploadErr     map[string]error // persistent upload failures per key

	// expireUploads makes the next n uploads fail with ErrCredentialsExpired
	// until refreshed() is observed.
	expireUploads bool

	uploads  int
	markers  int
	heads    int
	rebuilds int
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		objects:   make(map[string]models.RemoteObject),
		headErr:   make(map[string]error),
		uploadErr: make(map[string]error),
	}
}

func (f *fakeDest) seed(key string, content []byte) {
	sum := md5.Sum(content)
	f.objects[key] = models.RemoteObject{
		Key:  key,
		ETag: hex.EncodeToString(sum[:]),
		Size: int64(len(content)),
	}
}

func (f *fakeDest) EnsureBucket(_ context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bucketMissing {
		return &dest.NotFoundError{Kind: "bucket", Name: bucket}
	}
	return nil
}

func (f *fakeDest) List(_ context.Context, _ string) ([]models.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	result := make([]models.RemoteObject, 0, len(f.objects))
	for _, obj := range f.objects {
		result = append(result, obj)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })

	return result, nil
}

func (f *fakeDest) HeadDigest(_ context.Context, _ string, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.heads++

	if err, ok := f.headErr[key]; ok {
		return "", err
	}

	obj, ok := f.objects[key]
	if !ok {
		return "", &dest.NotFoundError{Kind: "key", Name: key}
	}

	return obj.ETag, nil
}

func (f *fakeDest) Upload(_ context.Context, _ string, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.expireUploads {
		return fmt.Errorf("upload %s: %w", key, dest.ErrCredentialsExpired)
	}

	if err, ok := f.uploadErr[key]; ok {
		return err
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	f.uploads++

	sum := md5.Sum(content)
	f.objects[key] = models.RemoteObject{
		Key:  key,
		ETag: hex.EncodeToString(sum[:]),
		Size: int64(len(content)),
	}

	return nil
}

func (f *fakeDest) PutMarker(_ context.Context, _ string, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.markers++

	sum := md5.Sum(nil)
	f.objects[key] = models.RemoteObject{
		Key:  key,
		ETag: hex.EncodeToString(sum[:]),
	}

	return nil
}

func (f *fakeDest) Rebuild(_ context.Context, _ config.AWSCredentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rebuilds++
	f.expireUploads = false

	return nil
}

// fakeCredentialSource counts refreshes.
type fakeCredentialSource struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCredentialSource) Refresh(_ context.Context) (config.AWSCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return config.AWSCredentials{}, f.err
	}

	return config.AWSCredentials{AccessKeyID: "fresh", SecretAccessKey: "fresh"}, nil
}
