package blitzhttp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blitzdl/blitz/internal/progress"
	"github.com/blitzdl/blitz/internal/utils"
)

// testResource serves a byte slice over HTTP with optional range support
// and per-range failure injection keyed by range start offset.
type testResource struct {
	data      []byte
	rangeable bool

	mu         sync.Mutex
	failStarts map[int64]int  // start offset -> failures before success
	alwaysFail map[int64]bool // start offset -> fail every attempt
	requests   map[int64]int  // start offset -> attempts seen
}

func newTestResource(data []byte, rangeable bool) *testResource {
	return &testResource{
		data:       data,
		rangeable:  rangeable,
		failStarts: make(map[int64]int),
		alwaysFail: make(map[int64]bool),
		requests:   make(map[int64]int),
	}
}

func (s *testResource) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
			if s.rangeable {
				w.Header().Set("Accept-Ranges", "bytes")
			}
			return
		}

		rangeHeader := r.Header.Get("Range")
		if !s.rangeable || rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(s.data)))
			w.Write(s.data)
			return
		}

		start, _ := strconv.ParseInt(strings.SplitN(strings.TrimPrefix(rangeHeader, "bytes="), "-", 2)[0], 10, 64)
		s.mu.Lock()
		s.requests[start]++
		fail := s.alwaysFail[start]
		if !fail && s.failStarts[start] > 0 {
			s.failStarts[start]--
			fail = true
		}
		s.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		serveByteRange(w, r, s.data)
	}
}

func (s *testResource) attempts(start int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[start]
}

func patternData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i*7 + i/255) % 256)
	}
	return data
}

func runJob(t *testing.T, url, outputPath string, connections int) error {
	t.Helper()
	d := &HTTPDownloader{}
	job := &utils.BlitzJob{
		JobType:     "http",
		URL:         url,
		OutputPath:  outputPath,
		Connections: connections,
		RetryPolicy: testRetryPolicy(),
		Metadata:    make(map[string]any),
	}
	if err := d.ValidateJob(job); err != nil {
		return err
	}
	if err := d.BuildJob(job); err != nil {
		return err
	}
	return d.Download(job)
}

func TestDownloadRoundTrip(t *testing.T) {
	data := patternData(1<<20 + 17)
	res := newTestResource(data, true)
	server := httptest.NewServer(res.handler())
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "out.bin")
	if err := runJob(t, server.URL, outputPath, 4); err != nil {
		t.Fatalf("download: %v", err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("size: got %d, want %d", len(got), len(data))
	}
	if sha256.Sum256(got) != sha256.Sum256(data) {
		t.Error("output checksum does not match resource")
	}
	if _, err := os.Stat(utils.TempDirFor(outputPath)); !os.IsNotExist(err) {
		t.Error("temp dir should be cleaned up after success")
	}
}

func TestSingleStreamMatchesMultiChunk(t *testing.T) {
	data := patternData(64 * 1024)

	multiRes := newTestResource(data, true)
	multiServer := httptest.NewServer(multiRes.handler())
	defer multiServer.Close()

	plainRes := newTestResource(data, false)
	plainServer := httptest.NewServer(plainRes.handler())
	defer plainServer.Close()

	dir := t.TempDir()
	multiPath := filepath.Join(dir, "multi.bin")
	plainPath := filepath.Join(dir, "plain.bin")

	if err := runJob(t, multiServer.URL, multiPath, 8); err != nil {
		t.Fatalf("multi download: %v", err)
	}
	if err := runJob(t, plainServer.URL, plainPath, 8); err != nil {
		t.Fatalf("single-stream download: %v", err)
	}

	multiOut, _ := os.ReadFile(multiPath)
	plainOut, _ := os.ReadFile(plainPath)
	if !bytes.Equal(multiOut, plainOut) {
		t.Error("single-stream and multi-chunk outputs differ")
	}
	if !bytes.Equal(multiOut, data) {
		t.Error("downloaded bytes differ from resource")
	}
}

func TestDownloadFlakyChunkRecovers(t *testing.T) {
	data := patternData(1000)
	res := newTestResource(data, true)
	// Second chunk of a 4-way plan starts at 250; fail its first two attempts
	res.failStarts[250] = 2
	server := httptest.NewServer(res.handler())
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "flaky.bin")
	if err := runJob(t, server.URL, outputPath, 4); err != nil {
		t.Fatalf("download should recover from transient chunk failures: %v", err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("downloaded bytes differ from resource")
	}
	if got := res.attempts(250); got != 3 {
		t.Errorf("flaky chunk attempts: got %d, want 3", got)
	}
}

func TestDownloadExhaustedChunkFailsJob(t *testing.T) {
	data := patternData(1000)
	res := newTestResource(data, true)
	res.alwaysFail[750] = true
	server := httptest.NewServer(res.handler())
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "doomed.bin")
	err := runJob(t, server.URL, outputPath, 4)
	if err == nil {
		t.Fatal("expected job failure when one chunk exhausts retries")
	}
	if !strings.Contains(err.Error(), "bytes 750-999") {
		t.Errorf("error should name the failing range: %v", err)
	}

	if _, statErr := os.Stat(outputPath); !os.IsNotExist(statErr) {
		t.Error("no output file should exist at the target path after failure")
	}
	if _, statErr := os.Stat(utils.TempDirFor(outputPath)); !os.IsNotExist(statErr) {
		t.Error("temp artifacts should be cleaned up after failure")
	}
}

func TestDownloadCancelsSiblingsOnFatalFailure(t *testing.T) {
	const size = 100000
	data := patternData(size)

	// Chunk 0 trickles one byte and then holds its connection open until
	// the client walks away; chunk 3 fails every attempt. The job must
	// return with chunk 3's error instead of waiting out the stall.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := strings.TrimPrefix(r.Header.Get("Range"), "bytes=")
		start, _ := strconv.ParseInt(strings.SplitN(rangeHeader, "-", 2)[0], 10, 64)
		switch start {
		case 75000:
			w.WriteHeader(http.StatusInternalServerError)
		case 0:
			w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-24999/%d", size))
			w.Header().Set("Content-Length", "25000")
			w.WriteHeader(http.StatusPartialContent)
			w.Write(data[:1])
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			<-r.Context().Done()
		default:
			serveByteRange(w, r, data)
		}
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "stalled.bin")
	config := utils.DownloadConfig{
		URL:         server.URL,
		OutputPath:  outputPath,
		Connections: 4,
		RetryPolicy: testRetryPolicy(),
	}
	tracker := progress.NewTracker(size, 4)
	client := utils.NewBlitzHTTPClient(utils.HTTPClientConfig{})

	started := time.Now()
	err := PerformMultiDownload(context.Background(), config, client, size, tracker)
	elapsed := time.Since(started)

	if err == nil {
		t.Fatal("expected job failure when one chunk exhausts retries")
	}
	if !strings.Contains(err.Error(), "bytes 75000-99999") {
		t.Errorf("error should carry the exhausted chunk's range: %v", err)
	}
	if elapsed > 10*time.Second {
		t.Errorf("job took %v; the stalled sibling was not cancelled", elapsed)
	}
	if _, statErr := os.Stat(outputPath); !os.IsNotExist(statErr) {
		t.Error("no output file should exist after failure")
	}
	if _, statErr := os.Stat(utils.TempDirFor(outputPath)); !os.IsNotExist(statErr) {
		t.Error("temp artifacts should be cleaned up after failure")
	}
}

func TestFlushAndCloseClosedFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "flush.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if err := flushAndClose(f); err != nil {
		t.Fatalf("flushAndClose on a healthy file: %v", err)
	}
	if err := flushAndClose(f); err == nil {
		t.Error("expected an error from an already-closed file")
	}
}

func TestDownloadZeroByteResource(t *testing.T) {
	res := newTestResource(nil, true)
	server := httptest.NewServer(res.handler())
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "empty.bin")
	if err := runJob(t, server.URL, outputPath, 4); err != nil {
		t.Fatalf("download: %v", err)
	}
	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size: got %d, want 0", info.Size())
	}
}

func TestBuildJobProbeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := &HTTPDownloader{}
	job := &utils.BlitzJob{
		URL:         server.URL,
		OutputPath:  filepath.Join(t.TempDir(), "never.bin"),
		Connections: 4,
		RetryPolicy: testRetryPolicy(),
		Metadata:    make(map[string]any),
	}
	if err := d.BuildJob(job); err == nil {
		t.Fatal("probe against a 404 should be fatal")
	}
	if _, statErr := os.Stat(job.OutputPath); !os.IsNotExist(statErr) {
		t.Error("no chunk work should happen after a failed probe")
	}
}

func TestBuildJobRangeProbeFallback(t *testing.T) {
	data := patternData(5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		serveByteRange(w, r, data)
	}))
	defer server.Close()

	d := &HTTPDownloader{}
	job := &utils.BlitzJob{
		URL:         server.URL,
		OutputPath:  filepath.Join(t.TempDir(), "fallback.bin"),
		Connections: 4,
		RetryPolicy: testRetryPolicy(),
		Metadata:    make(map[string]any),
	}
	if err := d.BuildJob(job); err != nil {
		t.Fatalf("build: %v", err)
	}
	if size, _ := job.Metadata["fileSize"].(int64); size != 5000 {
		t.Errorf("probed size: got %d, want 5000", size)
	}
	if supported, _ := job.Metadata["rangeSupported"].(bool); !supported {
		t.Error("trial range probe should detect range support")
	}
}

func TestFinalizeIntegrityMismatch(t *testing.T) {
	dir := t.TempDir()
	tempPath := filepath.Join(dir, "short.part")
	if err := os.WriteFile(tempPath, []byte("too short"), 0644); err != nil {
		t.Fatal(err)
	}

	err := finalizeDownload(tempPath, filepath.Join(dir, "short.bin"), 1000)
	var integrityErr *IntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if integrityErr.Expected != 1000 || integrityErr.Actual != 9 {
		t.Errorf("unexpected sizes in error: %+v", integrityErr)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "short.bin")); !os.IsNotExist(statErr) {
		t.Error("no output file should be created on integrity mismatch")
	}
}
