package utils

import (
	"errors"
	"math/rand"
	"time"
)

// Downloader is implemented by every scheme-specific downloader known to
// the scheduler. ValidateJob does cheap sanity checks, BuildJob performs
// the remote probe and fills job metadata, Download moves the bytes.
type Downloader interface {
	ValidateJob(job *BlitzJob) error
	BuildJob(job *BlitzJob) error
	Download(job *BlitzJob) error
}

type BlitzJob struct {
	ID               string
	JobType          string
	URL              string
	OutputPath       string
	Connections      int
	RetryPolicy      RetryPolicy
	ProgressFunc     func(downloaded, total int64)
	StreamFunc       func(line string)
	Metadata         map[string]any
	HTTPClientConfig HTTPClientConfig
}

// RetryPolicy controls per-chunk retry behavior. Backoff grows
// exponentially from BaseDelay and is capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Attempts returns how many attempts the policy allows, never less than
// one: a zero or negative MaxRetries still gets the initial attempt.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// Backoff returns the delay before the given attempt (1-based), jittered
// uniformly over [delay/2, delay] so sibling chunks don't retry in
// lockstep against a struggling server.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay <= 0 {
		return 0
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

type DownloadConfig struct {
	URL              string
	OutputPath       string
	Connections      int
	RetryPolicy      RetryPolicy
	HTTPClientConfig HTTPClientConfig
}

type DownloadEntry struct {
	OutputPath string `yaml:"op"`
	URL        string `yaml:"link"`
	Type       string `yaml:"type"`
}

const DefaultBufferSize = 1024 * 1024 * 8 // 8MB buffer
const LogFile = ".blitz.log"
const TempDirName = ".blitz-temp"

var ErrRangeRequestsNotSupported = errors.New("range requests are not supported")
var ErrUnknownSize = errors.New("resource size is unknown")
