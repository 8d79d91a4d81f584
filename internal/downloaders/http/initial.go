// Package blitzhttp implements the multi-connection HTTP(S) downloader:
// a probe for size and range support, a pure chunk planner, concurrent
// per-chunk fetchers with retry and backoff, and a finalize step that
// verifies and publishes the output file.
package blitzhttp

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blitzdl/blitz/internal/progress"
	"github.com/blitzdl/blitz/internal/utils"
)

type HTTPDownloader struct{}

// ResourceInfo is the outcome of the probe. Immutable once built.
type ResourceInfo struct {
	Size      int64 // -1 when unknown
	Rangeable bool
	Filename  string
}

func (d *HTTPDownloader) ValidateJob(job *utils.BlitzJob) error {
	parsedURL, err := url.Parse(job.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	if job.Connections < 1 {
		return fmt.Errorf("connections must be at least 1")
	}
	return nil
}

// BuildJob probes the resource and records size, range support, and the
// resolved output path in job metadata. A probe failure is fatal; no
// chunk work starts.
func (d *HTTPDownloader) BuildJob(job *utils.BlitzJob) error {
	job.HTTPClientConfig.HighThreadMode = job.Connections > 5
	client := utils.NewBlitzHTTPClient(job.HTTPClientConfig)

	info, err := probe(context.Background(), job.URL, client)
	if err != nil {
		return fmt.Errorf("error probing resource: %w", err)
	}

	if job.OutputPath == "" && info.Filename != "" {
		job.OutputPath = info.Filename
	} else if job.OutputPath == "" {
		parsedURL, _ := url.Parse(job.URL)
		pathParts := strings.Split(parsedURL.Path, "/")
		job.OutputPath = pathParts[len(pathParts)-1]
		if job.OutputPath == "" {
			job.OutputPath = "download"
		}
	}
	if existingFile, err := os.Stat(job.OutputPath); err == nil {
		if info.Size > 0 && existingFile.Size() == info.Size {
			return fmt.Errorf("file already exists with same size")
		}
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
	}

	job.Metadata["fileSize"] = info.Size
	job.Metadata["rangeSupported"] = info.Rangeable
	log.Debug().Str("op", "http/initial").Int64("size", info.Size).
		Bool("rangeable", info.Rangeable).Msgf("Probe complete for %s", job.URL)
	return nil
}

// Download runs the job to a terminal state: plan, fetch concurrently,
// reassemble. Degrades to a single-stream download when ranges are
// unsupported, size is unknown, or only one connection is configured.
func (d *HTTPDownloader) Download(job *utils.BlitzJob) error {
	return d.DownloadContext(context.Background(), job)
}

func (d *HTTPDownloader) DownloadContext(ctx context.Context, job *utils.BlitzJob) error {
	client := utils.NewBlitzHTTPClient(job.HTTPClientConfig)

	fileSize, _ := job.Metadata["fileSize"].(int64)
	rangeSupported, _ := job.Metadata["rangeSupported"].(bool)

	config := utils.DownloadConfig{
		URL:              job.URL,
		OutputPath:       job.OutputPath,
		Connections:      job.Connections,
		RetryPolicy:      job.RetryPolicy,
		HTTPClientConfig: job.HTTPClientConfig,
	}

	chunkCount := 1
	if rangeSupported && fileSize >= 0 {
		chunkCount = len(PlanChunks(fileSize, job.Connections))
	}
	tracker := progress.NewTracker(fileSize, chunkCount)

	// Feed the display from the tracker on a steady tick
	progressDone := make(chan struct{})
	tickerCtx, stopTicker := context.WithCancel(ctx)
	go func() {
		defer close(progressDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		var lastBytes int64
		for {
			select {
			case <-tickerCtx.Done():
				if job.ProgressFunc != nil {
					job.ProgressFunc(tracker.Received(), fileSize)
				}
				return
			case <-ticker.C:
				if received := tracker.Received(); received != lastBytes {
					if job.ProgressFunc != nil {
						job.ProgressFunc(received, fileSize)
					}
					lastBytes = received
				}
			}
		}
	}()

	startTime := time.Now()
	var err error
	if !rangeSupported || fileSize < 0 || job.Connections == 1 {
		err = PerformSimpleDownload(ctx, config, client, fileSize, tracker.Add)
	} else {
		err = PerformMultiDownload(ctx, config, client, fileSize, tracker)
	}

	stopTicker()
	<-progressDone

	job.Metadata["totalDownloaded"] = tracker.Received()
	job.Metadata["totalTime"] = time.Since(startTime).Seconds()
	return err
}

// probe determines resource size and range support. HEAD first; if the
// server rejects HEAD or omits the headers, a trial one-byte range GET
// checks whether partial content is honored and recovers the total size
// from Content-Range.
func probe(ctx context.Context, link string, client utils.HTTPDoer) (*ResourceInfo, error) {
	info := &ResourceInfo{Size: -1}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented:
		// Fall through to the trial range request
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("server returned error: %d", resp.StatusCode)
	default:
		info.Filename = filenameFromHeader(resp.Header.Get("Content-Disposition"))
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size >= 0 {
				info.Size = size
			}
		}
		if resp.Header.Get("Accept-Ranges") == "bytes" && info.Size >= 0 {
			info.Rangeable = true
			return info, nil
		}
	}

	// Trial partial request: some servers honor ranges without
	// advertising Accept-Ranges, or reject HEAD outright.
	trial, err := probeRange(ctx, link, client)
	if err != nil {
		if info.Size >= 0 {
			// HEAD worked, ranges don't: degrade to a single stream
			return info, nil
		}
		return nil, err
	}
	if trial.Filename != "" && info.Filename == "" {
		info.Filename = trial.Filename
	}
	info.Size = trial.Size
	info.Rangeable = trial.Rangeable
	return info, nil
}

func probeRange(ctx context.Context, link string, client utils.HTTPDoer) (*ResourceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned error: %d", resp.StatusCode)
	}

	info := &ResourceInfo{Size: -1}
	info.Filename = filenameFromHeader(resp.Header.Get("Content-Disposition"))
	if resp.StatusCode != http.StatusPartialContent {
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size >= 0 {
				info.Size = size
			}
		}
		return info, nil
	}

	cr := resp.Header.Get("Content-Range")
	if cr == "" {
		return nil, errors.New("partial response without Content-Range header")
	}
	parts := strings.Split(cr, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid Content-Range header: %s", cr)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid Content-Range header: %s", cr)
	}
	info.Size = size
	info.Rangeable = true
	return info, nil
}

var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func filenameFromHeader(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return filenameSanitizer.ReplaceAllString(fn, "_")
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		return filenameSanitizer.ReplaceAllString(unescaped, "_")
	}
	return ""
}
