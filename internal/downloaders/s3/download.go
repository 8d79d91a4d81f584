package s3

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/blitzdl/blitz/internal/utils"
)

func (d *S3Downloader) Download(job *utils.BlitzJob) error {
	bucket := job.Metadata["bucket"].(string)
	key := job.Metadata["key"].(string)
	fileType := job.Metadata["fileType"].(string)
	profile, _ := job.Metadata["profile"].(string)

	client, err := getS3Client(profile)
	if err != nil {
		return fmt.Errorf("error creating S3 client: %w", err)
	}
	if fileType == "folder" {
		log.Info().Str("op", "s3/download").Msgf("Starting folder download for s3://%s/%s", bucket, key)
		return d.downloadFolder(job, bucket, key, client)
	}
	log.Info().Str("op", "s3/download").Msgf("Starting file download for s3://%s/%s", bucket, key)
	return d.downloadFile(job, bucket, key, client)
}

func (d *S3Downloader) downloadFile(job *utils.BlitzJob, bucket, key string, client *awss3.Client) error {
	size, _ := job.Metadata["size"].(int64)
	var downloaded atomic.Int64
	report := func(n int64) {
		total := downloaded.Add(n)
		if job.ProgressFunc != nil {
			job.ProgressFunc(total, size)
		}
	}
	return downloadObject(context.Background(), client, bucket, key, job.OutputPath, size, job.Connections, report)
}

// downloadObject transfers one object through the SDK transfer manager,
// which issues concurrent ranged GETs against the pre-sized output file.
func downloadObject(ctx context.Context, client *awss3.Client, bucket, key, outputPath string, size int64, connections int, report func(int64)) error {
	tempDir := utils.TempDirFor(outputPath)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %w", err)
	}
	tempPath := filepath.Join(tempDir, filepath.Base(outputPath)+".part")

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.Concurrency = connections
		if size > 0 && int64(connections) > 0 {
			partSize := size / int64(connections)
			if partSize > manager.DefaultDownloadPartSize {
				d.PartSize = partSize
			}
		}
	})

	written, err := downloader.Download(ctx, &countingWriterAt{file: file, report: report}, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		utils.CleanJobArtifacts(outputPath)
		return fmt.Errorf("error downloading object: %w", err)
	}
	if size > 0 && written != size {
		os.Remove(tempPath)
		utils.CleanJobArtifacts(outputPath)
		return fmt.Errorf("integrity error: downloaded %d bytes, expected %d", written, size)
	}
	if err := os.Rename(tempPath, outputPath); err != nil {
		return fmt.Errorf("error finalizing output file: %w", err)
	}
	utils.CleanJobArtifacts(outputPath)
	return nil
}

func (d *S3Downloader) downloadFolder(job *utils.BlitzJob, bucket, prefix string, client *awss3.Client) error {
	objects, err := listS3Objects(bucket, prefix, client)
	if err != nil {
		return fmt.Errorf("error listing objects: %w", err)
	}
	if len(objects) == 0 {
		return fmt.Errorf("no objects found in s3://%s/%s", bucket, prefix)
	}
	var totalSize int64
	for _, obj := range objects {
		totalSize += obj.Size
	}
	log.Debug().Str("op", "s3/download").Msgf("Found %d objects totaling %d bytes", len(objects), totalSize)

	var totalDownloaded atomic.Int64
	report := func(n int64) {
		total := totalDownloaded.Add(n)
		if job.ProgressFunc != nil {
			job.ProgressFunc(total, totalSize)
		}
	}

	var mu sync.Mutex
	var downloadErr error
	jobCh := make(chan s3Object, len(objects))
	for _, obj := range objects {
		jobCh <- obj
	}
	close(jobCh)

	numWorkers := min(job.Connections, len(objects))
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for obj := range jobCh {
				relPath := strings.TrimPrefix(strings.TrimPrefix(obj.Key, prefix), "/")
				outputPath := filepath.Join(job.OutputPath, relPath)
				if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
					setFirstErr(&mu, &downloadErr, fmt.Errorf("error creating directory: %w", err))
					return
				}
				err := downloadObject(context.Background(), client, bucket, obj.Key, outputPath, obj.Size, 1, report)
				if err != nil {
					setFirstErr(&mu, &downloadErr, fmt.Errorf("error downloading %s: %w", obj.Key, err))
					return
				}
			}
		}()
	}
	wg.Wait()
	return downloadErr
}

func setFirstErr(mu *sync.Mutex, dst *error, err error) {
	mu.Lock()
	defer mu.Unlock()
	if *dst == nil {
		*dst = err
	}
}

// countingWriterAt reports byte deltas as the transfer manager writes
// concurrent parts.
type countingWriterAt struct {
	file   *os.File
	report func(int64)
}

func (w *countingWriterAt) WriteAt(p []byte, off int64) (int, error) {
	n, err := w.file.WriteAt(p, off)
	if n > 0 && w.report != nil {
		w.report(int64(n))
	}
	return n, err
}
