package blitzhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzdl/blitz/internal/utils"
)

// PerformSimpleDownload streams the whole resource in one request. Used
// when the server ignores range requests, the size is unknown, or only
// one connection was requested. expectedSize < 0 means unknown.
func PerformSimpleDownload(ctx context.Context, config utils.DownloadConfig, client utils.HTTPDoer, expectedSize int64, report func(delta int64)) error {
	tempDir := utils.TempDirFor(config.OutputPath)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %w", err)
	}
	tempPath := filepath.Join(tempDir, filepath.Base(config.OutputPath)+".part")

	policy := config.RetryPolicy
	maxAttempts := policy.Attempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			break
		}
		if attempt > 1 {
			backoff := policy.Backoff(attempt - 1)
			log.Warn().Str("op", "http/simple").Msgf("Retrying download for %s (attempt %d/%d)", config.OutputPath, attempt, maxAttempts)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		err := downloadAttempt(ctx, config.URL, tempPath, client, expectedSize, report, attempt > 1)
		if err != nil {
			lastErr = err
			log.Debug().Str("op", "http/simple").Err(err).Msgf("Download attempt %d failed", attempt)
			continue
		}
		if err := os.Rename(tempPath, config.OutputPath); err != nil {
			return fmt.Errorf("error finalizing output file: %w", err)
		}
		utils.CleanJobArtifacts(config.OutputPath)
		log.Info().Str("op", "http/simple").Msgf("Download complete for %s", config.OutputPath)
		return nil
	}

	os.Remove(tempPath)
	utils.CleanJobArtifacts(config.OutputPath)
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("download failed after %d attempts: %w", maxAttempts, lastErr)
}

func downloadAttempt(ctx context.Context, url, tempPath string, client utils.HTTPDoer, expectedSize int64, report func(delta int64), allowResume bool) error {
	var resumeOffset int64
	fileMode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if allowResume {
		// Resume only within this run; stale artifacts from earlier runs
		// are truncated on the first attempt.
		if fileInfo, err := os.Stat(tempPath); err == nil && fileInfo.Size() > 0 {
			resumeOffset = fileInfo.Size()
			fileMode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
	}

	outFile, err := os.OpenFile(tempPath, fileMode, 0644)
	if err != nil {
		return fmt.Errorf("error creating output file: %w", err)
	}
	defer outFile.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
	}
	req.Header.Set("Connection", "keep-alive")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resumeOffset > 0 {
		if resp.StatusCode != http.StatusPartialContent {
			// Server ignored the resume range; drop the partial artifact so
			// the next attempt restarts from scratch.
			log.Debug().Str("op", "http/simple").Msgf("Server does not support resume (status %d)", resp.StatusCode)
			outFile.Close()
			os.Remove(tempPath)
			report(-resumeOffset)
			return fmt.Errorf("server ignored resume request (status %d)", resp.StatusCode)
		}
	} else if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	buffer := make([]byte, utils.DefaultBufferSize)
	written := resumeOffset
	for {
		n, readErr := resp.Body.Read(buffer)
		if n > 0 {
			if _, writeErr := outFile.Write(buffer[:n]); writeErr != nil {
				return fmt.Errorf("error writing to output file: %w", writeErr)
			}
			written += int64(n)
			report(int64(n))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	outFile.Sync()
	return nil
}
