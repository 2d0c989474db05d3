// Package integrity decides whether an object needs uploading by comparing a
// locally computed digest against the digest the destination store reports.
package integrity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// readChunkSize bounds memory while hashing regardless of file size.
const readChunkSize = 4096

// Decision is the outcome of a digest comparison.
type Decision int

const (
	// NeedsUpload means the destination is missing the object or holds
	// different content.
	NeedsUpload Decision = iota
	// UpToDate means the destination already holds identical content.
	UpToDate
)

func (d Decision) String() string {
	if d == UpToDate {
		return "up-to-date"
	}
	return "needs-upload"
}

// FileMD5 computes the MD5 digest of a local file, streaming it in fixed-size
// chunks. MD5 matches the S3 ETag for objects uploaded in a single part.
func FileMD5(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	hash := md5.New()

	buf := make([]byte, readChunkSize)
	if _, err := io.CopyBuffer(hash, file, buf); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// CleanETag removes quotes and extra characters from an ETag.
func CleanETag(etag string) string {
	etag = strings.Trim(etag, "\"")
	etag = strings.TrimSpace(etag)
	return etag
}

// IsMultipartETag checks if an ETag came from a multipart upload. Multipart
// ETags contain a dash (e.g. "abc123-5") and are not a plain content hash.
func IsMultipartETag(etag string) bool {
	return strings.Contains(CleanETag(etag), "-")
}

// Decide compares a local digest against the remote-reported one. A missing
// remote digest means the object must be uploaded. A multipart remote ETag
// cannot be compared against a plain MD5, so any non-equal pair falls through
// to NeedsUpload: re-uploading is safe, silently skipping is not.
func Decide(localDigest, remoteDigest string) Decision {
	if remoteDigest == "" {
		return NeedsUpload
	}

	if CleanETag(remoteDigest) == localDigest {
		return UpToDate
	}

	return NeedsUpload
}
