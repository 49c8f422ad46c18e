package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"carrier-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultURLTTL is the lifetime of presigned label URLs.
const DefaultURLTTL = 24 * time.Hour

// ObjectPutter is the part of the S3 client used to upload labels.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// GetPresigner is the part of the S3 presign client used for label URLs.
type GetPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3LabelStore keeps label files in S3 and hands out presigned GET URLs.
type S3LabelStore struct {
	client    ObjectPutter
	presigner GetPresigner
	bucket    string
	ttl       time.Duration
}

func NewS3LabelStore(client ObjectPutter, presigner GetPresigner, bucket string, ttl time.Duration) *S3LabelStore {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &S3LabelStore{client: client, presigner: presigner, bucket: bucket, ttl: ttl}
}

var contentTypes = map[string]string{
	"PDF": "application/pdf",
	"GIF": "image/gif",
	"PNG": "image/png",
	"ZPL": "application/x-zpl",
}

// LabelKey is the object key for a label.
func LabelKey(userID, carrier, trackingNumber, format string) string {
	ext := strings.ToLower(format)
	if ext == "" {
		ext = "pdf"
	}
	return path.Join("labels", userID, carrier, trackingNumber+"."+ext)
}

// Store uploads the embedded label bytes and returns a presigned URL for
// them. A label without bytes is returned as its existing URL.
func (s *S3LabelStore) Store(ctx context.Context, userID, carrier, trackingNumber string, label *models.Label) (string, error) {
	if label == nil {
		return "", nil
	}
	if len(label.Data) == 0 {
		return label.URL, nil
	}

	key := LabelKey(userID, carrier, trackingNumber, label.Format)
	contentType, ok := contentTypes[strings.ToUpper(label.Format)]
	if !ok {
		contentType = "application/octet-stream"
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(label.Data),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", fmt.Errorf("upload label %s: %w", key, err)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign label %s: %w", key, err)
	}
	return req.URL, nil
}
