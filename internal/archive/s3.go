// Package archive copies exported attendance workbooks to object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "attendance"

var (
	// ErrDisabled indicates no bucket is configured.
	ErrDisabled = errors.New("archive: object storage not configured")
	// ErrMissingCredentials indicates a bucket without an access key pair.
	ErrMissingCredentials = errors.New("archive: access key id and secret access key are required")
	// ErrUploadFailed wraps failures reported by the object store.
	ErrUploadFailed = errors.New("archive: upload failed")

	noOpLogger = zap.NewNop()
)

// objectPutter is the subset of the S3 client the archiver needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config describes the bucket and credentials. Endpoint targets S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
	Logger          *zap.Logger
}

// Object describes an uploaded archive.
type Object struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Size   int    `json:"size"`
}

// S3Archiver uploads export workbooks under "<prefix>/<date>/<file name>".
type S3Archiver struct {
	client    objectPutter
	bucket    string
	keyPrefix string
	logger    *zap.Logger
}

// NewS3Archiver builds an S3 client from static credentials. Both keys are required so
// uploads are always signed.
func NewS3Archiver(cfg S3Config) (*S3Archiver, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, ErrDisabled
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		return nil, errors.New("archive: region is required")
	}
	accessKeyID := strings.TrimSpace(cfg.AccessKeyID)
	secretAccessKey := strings.TrimSpace(cfg.SecretAccessKey)
	if accessKeyID == "" || secretAccessKey == "" {
		return nil, ErrMissingCredentials
	}
	awsConfig := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsConfig, func(options *s3.Options) {
		if endpoint != "" {
			options.BaseEndpoint = aws.String(endpoint)
			options.UsePathStyle = true
		}
	})
	return newS3Archiver(client, bucket, cfg.KeyPrefix, cfg.Logger), nil
}

func newS3Archiver(client objectPutter, bucket, keyPrefix string, logger *zap.Logger) *S3Archiver {
	prefix := strings.Trim(strings.TrimSpace(keyPrefix), "/")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = noOpLogger
	}
	return &S3Archiver{client: client, bucket: bucket, keyPrefix: prefix, logger: logger}
}

// Upload stores body under the date's folder and returns its location.
func (a *S3Archiver) Upload(ctx context.Context, date, fileName, contentType string, body []byte) (Object, error) {
	key := path.Join(a.keyPrefix, date, fileName)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		a.logger.Error("attendance archive error",
			zap.String("operation", "archive.upload"),
			zap.String("reason", "put_failed"),
			zap.String("bucket", a.bucket),
			zap.String("key", key),
			zap.Error(err))
		return Object{}, fmt.Errorf("%w: %s/%s: %v", ErrUploadFailed, a.bucket, key, err)
	}
	a.logger.Info("attendance archived",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(body)))
	return Object{Bucket: a.bucket, Key: key, Size: len(body)}, nil
}
