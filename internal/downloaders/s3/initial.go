package s3

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/blitzdl/blitz/internal/utils"
)

type S3Downloader struct{}

func (d *S3Downloader) ValidateJob(job *utils.BlitzJob) error {
	bucket, key, err := parseS3URL(job.URL)
	if err != nil {
		return err
	}
	job.Metadata["bucket"] = bucket
	job.Metadata["key"] = key
	log.Debug().Str("op", "s3/initial").Msgf("Job validated for s3://%s/%s", bucket, key)
	return nil
}

func (d *S3Downloader) BuildJob(job *utils.BlitzJob) error {
	bucket := job.Metadata["bucket"].(string)
	key := job.Metadata["key"].(string)
	profile, _ := job.Metadata["profile"].(string)
	client, err := getS3Client(profile)
	if err != nil {
		return fmt.Errorf("error creating S3 client: %w", err)
	}

	fileType, size, err := getS3ObjectInfo(bucket, key, client)
	if err != nil {
		return fmt.Errorf("error probing S3 object: %w", err)
	}
	job.Metadata["fileType"] = fileType
	job.Metadata["size"] = size

	if job.OutputPath == "" {
		if fileType == "folder" {
			parts := strings.Split(strings.TrimSuffix(key, "/"), "/")
			job.OutputPath = parts[len(parts)-1]
			if job.OutputPath == "" {
				job.OutputPath = bucket
			}
		} else {
			parts := strings.Split(key, "/")
			job.OutputPath = parts[len(parts)-1]
		}
	}
	if exists, err := pathExists(job.OutputPath); err == nil && exists {
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
	}
	log.Debug().Str("op", "s3/initial").Int64("size", size).Msgf("Job built for s3://%s/%s", bucket, key)
	return nil
}

func parseS3URL(url string) (string, string, error) {
	url = strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(url, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL format")
	}
	bucket := parts[0]
	key := ""
	if len(parts) > 1 {
		key = parts[1]
	}
	return bucket, key, nil
}
