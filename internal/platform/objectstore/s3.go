// Package objectstore uploads generated credential artifacts to S3 compatible storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fedcred/internal/platform/config"
)

// DefaultURLExpiry bounds how long a returned download link stays valid.
const DefaultURLExpiry = 15 * time.Minute

// Object describes a stored artifact.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store is safe for concurrent use.
type S3Store struct {
	client    s3API
	presign   *s3.PresignClient
	bucket    string
	keyPrefix string
	urlExpiry time.Duration
}

// New returns nil when no bucket is configured.
func New(ctx context.Context, cfg config.ObjectStore) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Store{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
		urlExpiry: DefaultURLExpiry,
	}, nil
}

// Put uploads body under key (prefixed with the configured key prefix) and returns
// a time limited download URL.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body []byte) (*Object, error) {
	if key == "" {
		return nil, errors.New("object key is required")
	}
	fullKey := key
	if s.keyPrefix != "" {
		fullKey = s.keyPrefix + "/" + key
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(fullKey),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", fullKey, err)
	}

	obj := &Object{Key: fullKey, ContentType: contentType, Size: int64(len(body))}
	if s.presign != nil {
		req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fullKey),
		}, s3.WithPresignExpires(s.urlExpiry))
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", fullKey, err)
		}
		obj.URL = req.URL
	}
	return obj, nil
}

// Health checks that the bucket is reachable with the configured credentials.
func (s *S3Store) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
