package aws

import (
	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client creates a new S3 client from AWS config. Path-style addressing
// is used when a custom endpoint is configured so LocalStack buckets resolve.
func NewS3Client(cfg sdkaws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if customEndpoint() != "" {
			o.UsePathStyle = true
		}
	})
}

// NewS3PresignClient wraps client for presigned URL generation.
func NewS3PresignClient(client *s3.Client) *s3.PresignClient {
	return s3.NewPresignClient(client)
}
