package blitzhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzdl/blitz/internal/utils"
)

type ChunkStatus int

const (
	StatusPending ChunkStatus = iota
	StatusInProgress
	StatusRetrying
	StatusComplete
	StatusFailed
)

func (s ChunkStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusRetrying:
		return "retrying"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// ChunkState tracks one chunk from launch to terminal status. Only the
// fetcher owning the chunk mutates it; the coordinator reads it after
// all fetchers have finished.
type ChunkState struct {
	Plan ChunkPlan

	mu         sync.Mutex
	downloaded int64
	attempts   int
	status     ChunkStatus
	lastErr    error
}

func NewChunkState(plan ChunkPlan) *ChunkState {
	return &ChunkState{Plan: plan}
}

func (c *ChunkState) Status() ChunkStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *ChunkState) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *ChunkState) Downloaded() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloaded
}

func (c *ChunkState) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *ChunkState) setStatus(s ChunkStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *ChunkState) beginAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	c.status = StatusInProgress
	return c.attempts
}

func (c *ChunkState) addBytes(n int64) {
	c.mu.Lock()
	c.downloaded += n
	c.mu.Unlock()
}

// resetBytes discards attempt progress and returns how many bytes were
// rolled back.
func (c *ChunkState) resetBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.downloaded
	c.downloaded = 0
	return n
}

func (c *ChunkState) fail(err error) {
	c.mu.Lock()
	c.status = StatusFailed
	c.lastErr = err
	c.mu.Unlock()
}

// chunkFetcher downloads a single chunk with retries. Each attempt
// restarts the chunk from its start offset; bytes land in the shared
// output file through a positioned writer, so concurrent chunks never
// interleave.
type chunkFetcher struct {
	url    string
	client utils.HTTPDoer
	policy utils.RetryPolicy
	report func(delta int64)
}

// fetch drives the chunk to a terminal state. It returns nil once the
// chunk is complete, or the last error after retries are exhausted or
// the context is cancelled.
func (f *chunkFetcher) fetch(ctx context.Context, state *ChunkState, dest io.WriterAt) error {
	size := state.Plan.Size()
	if size == 0 {
		state.setStatus(StatusComplete)
		return nil
	}

	var lastErr error
	maxAttempts := f.policy.Attempts()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			state.fail(err)
			return err
		}
		if attempt > 1 {
			state.setStatus(StatusRetrying)
			if rolled := state.resetBytes(); rolled > 0 {
				f.report(-rolled)
			}
			backoff := f.policy.Backoff(attempt - 1)
			log.Debug().Str("op", "http/chunk").Int("chunk", state.Plan.Index).
				Dur("backoff", backoff).Msgf("Retrying chunk (attempt %d/%d)", attempt, maxAttempts)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				state.fail(ctx.Err())
				return ctx.Err()
			}
		}

		state.beginAttempt()
		err := f.fetchOnce(ctx, state, dest)
		if err == nil {
			state.setStatus(StatusComplete)
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			state.fail(ctx.Err())
			return ctx.Err()
		}
		log.Debug().Str("op", "http/chunk").Int("chunk", state.Plan.Index).Err(err).
			Msgf("Chunk attempt %d failed", attempt)
	}

	err := fmt.Errorf("chunk %d (bytes %d-%d) failed after %d attempts: %w",
		state.Plan.Index, state.Plan.StartByte, state.Plan.EndByte, state.Attempts(), lastErr)
	state.fail(err)
	return err
}

// fetchOnce performs one ranged request for the whole chunk. Any error
// is recoverable from the caller's perspective; the chunk restarts from
// its start offset on the next attempt.
func (f *chunkFetcher) fetchOnce(ctx context.Context, state *ChunkState, dest io.WriterAt) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", state.Plan.StartByte, state.Plan.EndByte))
	req.Header.Set("Connection", "keep-alive")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	size := state.Plan.Size()
	if resp.ContentLength >= 0 && resp.ContentLength != size {
		return fmt.Errorf("range response Content-Length %d does not match chunk size %d", resp.ContentLength, size)
	}

	writer := io.NewOffsetWriter(dest, state.Plan.StartByte)
	buffer := make([]byte, chunkCopyBufferSize(size))
	var written int64
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if written+int64(n) > size {
				return fmt.Errorf("server sent more than the %d requested bytes", size)
			}
			if _, writeErr := writer.Write(buffer[:n]); writeErr != nil {
				return writeErr
			}
			written += int64(n)
			state.addBytes(int64(n))
			f.report(int64(n))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return readErr
		}
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	return nil
}

func chunkCopyBufferSize(chunkSize int64) int64 {
	if chunkSize < utils.DefaultBufferSize {
		return chunkSize
	}
	return utils.DefaultBufferSize
}
