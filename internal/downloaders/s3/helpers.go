package s3

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3Object struct {
	Key  string
	Size int64
}

func getS3Client(profile string) (*awss3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMode("adaptive"),
	}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	return awss3.NewFromConfig(cfg), nil
}

func getS3ObjectInfo(bucket, key string, client *awss3.Client) (string, int64, error) {
	headObj, err := client.HeadObject(context.Background(), &awss3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		size := int64(0)
		if headObj.ContentLength != nil {
			size = *headObj.ContentLength
		}
		return "file", size, nil
	}

	// Not a single object; check for a folder prefix
	result, err := client.ListObjectsV2(context.Background(), &awss3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", 0, fmt.Errorf("error accessing S3 object: %w", err)
	}
	if len(result.Contents) > 0 || len(result.CommonPrefixes) > 0 {
		return "folder", -1, nil
	}
	return "", 0, fmt.Errorf("S3 object not found")
}

func listS3Objects(bucket, prefix string, client *awss3.Client) ([]s3Object, error) {
	var objects []s3Object
	paginator := awss3.NewListObjectsV2Paginator(client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("error listing objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.Size == nil {
				continue
			}
			// Skip zero-byte folder markers
			if *obj.Size == 0 && strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			objects = append(objects, s3Object{Key: *obj.Key, Size: *obj.Size})
		}
	}
	return objects, nil
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
