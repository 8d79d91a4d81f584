package blitzhttp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/blitzdl/blitz/internal/progress"
	"github.com/blitzdl/blitz/internal/utils"
)

// IntegrityError reports a final size mismatch after all chunks claimed
// completion. It indicates a planning or write-ordering bug, not a
// network condition, and is surfaced distinctly for that reason.
type IntegrityError struct {
	Expected int64
	Actual   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: final size %d does not match expected %d", e.Actual, e.Expected)
}

// PerformMultiDownload fetches the resource as concurrent byte-range
// chunks written at their own offsets into a single pre-sized temp file,
// then verifies and renames it into place. On the first chunk that
// exhausts its retries all sibling fetchers are cancelled, the temp
// artifact is removed, and the root-cause error is returned.
func PerformMultiDownload(ctx context.Context, config utils.DownloadConfig, client utils.HTTPDoer, fileSize int64, tracker *progress.Tracker) error {
	tempDir := utils.TempDirFor(config.OutputPath)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %w", err)
	}
	tempPath := filepath.Join(tempDir, filepath.Base(config.OutputPath)+".part")

	destFile, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	// Pre-size the file so chunks can write at their offsets concurrently
	if err := destFile.Truncate(fileSize); err != nil {
		destFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("error pre-sizing temp file: %w", err)
	}

	plans := PlanChunks(fileSize, config.Connections)
	log.Debug().Str("op", "http/multi").Int("chunks", len(plans)).
		Int64("size", fileSize).Msg("Chunk plan computed")

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fetcher := &chunkFetcher{
		url:    config.URL,
		client: client,
		policy: config.RetryPolicy,
		report: tracker.Add,
	}

	states := make([]*ChunkState, len(plans))
	sem := make(chan struct{}, config.Connections)
	var wg sync.WaitGroup
	for i, plan := range plans {
		states[i] = NewChunkState(plan)
		wg.Add(1)
		go func(state *ChunkState) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := fetcher.fetch(fetchCtx, state, destFile); err != nil {
				if tracker.ChunkFailed(err) {
					log.Error().Str("op", "http/multi").Int("chunk", state.Plan.Index).Err(err).
						Msg("Chunk failed, cancelling remaining chunks")
					cancel()
				}
				return
			}
			tracker.ChunkComplete()
		}(states[i])
	}
	wg.Wait()

	flushErr := flushAndClose(destFile)

	if !tracker.Succeeded() {
		os.Remove(tempPath)
		utils.CleanJobArtifacts(config.OutputPath)
		if err := tracker.Err(); err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		return ctx.Err()
	}
	if flushErr != nil {
		os.Remove(tempPath)
		utils.CleanJobArtifacts(config.OutputPath)
		return fmt.Errorf("error flushing temp file: %w", flushErr)
	}

	return finalizeDownload(tempPath, config.OutputPath, fileSize)
}

// flushAndClose surfaces write-back errors that only show up at sync or
// close time, so a failed flush cannot reach the rename step.
func flushAndClose(f *os.File) error {
	syncErr := f.Sync()
	if err := f.Close(); err != nil {
		return err
	}
	return syncErr
}

// finalizeDownload is the reassembly step. Chunks already wrote their
// disjoint ranges into tempPath, so this verifies the total length and
// moves the file into place. The output path only ever receives a fully
// verified file.
func finalizeDownload(tempPath, outputPath string, fileSize int64) error {
	info, err := os.Stat(tempPath)
	if err != nil {
		return fmt.Errorf("error checking temp file: %w", err)
	}
	if info.Size() != fileSize {
		os.Remove(tempPath)
		return &IntegrityError{Expected: fileSize, Actual: info.Size()}
	}
	if err := os.Rename(tempPath, outputPath); err != nil {
		return fmt.Errorf("error finalizing output file: %w", err)
	}
	utils.CleanJobArtifacts(outputPath)
	return nil
}
