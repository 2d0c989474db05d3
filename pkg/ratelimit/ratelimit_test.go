package ratelimit

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderPassesContentThrough(t *testing.T) {
	content := strings.Repeat("x", 64*1024)
	limiter := NewLimiter(1024 * 1024 * 1024) // effectively unlimited

	r := NewReader(context.Background(), strings.NewReader(content), limiter)

	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, buf.String())
}

func TestReaderThrottles(t *testing.T) {
	// 2 KiB at 1 KiB/s: the first burst is free, the second has to wait
	// roughly a second.
	content := strings.Repeat("x", 2048)
	limiter := NewLimiter(1024)

	r := NewReader(context.Background(), strings.NewReader(content), limiter)

	start := time.Now()
	_, err := io.Copy(io.Discard, r)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestReaderRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limiter := NewLimiter(1)
	r := NewReader(ctx, strings.NewReader(strings.Repeat("x", 4096)), limiter)

	_, err := io.Copy(io.Discard, r)
	require.Error(t, err)
}
