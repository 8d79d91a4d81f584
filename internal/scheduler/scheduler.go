// Package scheduler runs download jobs across a bounded pool of workers
// and routes per-job status into the output manager.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/blitzdl/blitz/internal/downloaders/gitclone"
	blitzhttp "github.com/blitzdl/blitz/internal/downloaders/http"
	"github.com/blitzdl/blitz/internal/downloaders/s3"
	"github.com/blitzdl/blitz/internal/output"
	"github.com/blitzdl/blitz/internal/utils"
)

// downloaderRegistry maps job types to their downloader implementations.
var downloaderRegistry = map[string]utils.Downloader{
	"http":     &blitzhttp.HTTPDownloader{},
	"s3":       &s3.S3Downloader{},
	"gitclone": &gitclone.GitCloneDownloader{},
}

// Run executes the given jobs with numWorkers parallel workers. Returns
// an error if any job failed.
func Run(jobs []utils.BlitzJob, numWorkers int) error {
	if numWorkers < 1 {
		numWorkers = 1
	}

	outputMgr := output.NewManager()
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()

	jobCh := make(chan utils.BlitzJob, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		jobCh <- job
	}
	close(jobCh)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processJobs(jobCh, outputMgr)
		}()
	}
	wg.Wait()

	if outputMgr.HasErrors() {
		return fmt.Errorf("one or more downloads failed")
	}
	return nil
}

func processJobs(jobCh <-chan utils.BlitzJob, outputMgr *output.Manager) {
	for job := range jobCh {
		name := job.OutputPath
		if name == "" {
			name = job.URL
		}
		outputMgr.Register(job.ID, name)

		downloader, exists := downloaderRegistry[job.JobType]
		if !exists {
			outputMgr.ReportError(job.ID, fmt.Errorf("unknown job type: %s", job.JobType))
			continue
		}

		outputMgr.SetStatus(job.ID, "pending")
		outputMgr.SetMessage(job.ID, fmt.Sprintf("Validating %s job", job.JobType))
		if err := downloader.ValidateJob(&job); err != nil {
			log.Error().Str("op", "scheduler").Err(err).Msgf("Validation failed for %s", job.URL)
			outputMgr.ReportError(job.ID, fmt.Errorf("validation failed: %w", err))
			continue
		}

		outputMgr.SetMessage(job.ID, fmt.Sprintf("Probing %s", job.URL))
		if err := downloader.BuildJob(&job); err != nil {
			log.Error().Str("op", "scheduler").Err(err).Msgf("Build failed for %s", job.URL)
			outputMgr.ReportError(job.ID, fmt.Errorf("build failed: %w", err))
			continue
		}

		id := job.ID
		job.ProgressFunc = func(downloaded, total int64) {
			outputMgr.SetProgress(id, downloaded, total)
		}
		job.StreamFunc = func(line string) {
			outputMgr.AddStreamLine(id, line)
		}

		outputMgr.SetStatus(job.ID, "running")
		if err := downloader.Download(&job); err != nil {
			log.Error().Str("op", "scheduler").Err(err).Msgf("Download failed for %s", job.OutputPath)
			outputMgr.ReportError(job.ID, err)
			continue
		}

		log.Info().Str("op", "scheduler").Msgf("Completed %s", job.OutputPath)
		outputMgr.Complete(job.ID, "done")
	}
}
