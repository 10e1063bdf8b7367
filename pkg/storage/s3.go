// Package storage puts uploaded documents into an S3 bucket and builds their
// public URLs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
)

// s3API is the part of *s3.Client the store calls.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Object is one blob to store.
type Object struct {
	Key         string
	Body        []byte
	ContentType string
}

// S3Store writes objects to a single bucket.
type S3Store struct {
	api      s3API
	bucket   string
	region   string
	endpoint string
	acl      types.ObjectCannedACL
}

// New creates an S3Store over api for the bucket described by cfg.
func New(api s3API, cfg config.StorageConfig) (*S3Store, error) {
	if api == nil {
		return nil, errors.New("storage: api must not be nil")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	return &S3Store{
		api:      api,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		acl:      types.ObjectCannedACL(cfg.ACL),
	}, nil
}

// NewFromConfig loads AWS configuration for cfg.Region, using the static
// key pair when both halves are set and the default chain otherwise.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, cfg)
}

// Put uploads obj and returns its public URL.
func (s *S3Store) Put(ctx context.Context, obj Object) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(obj.Key),
		Body:          bytes.NewReader(obj.Body),
		ContentLength: aws.Int64(int64(len(obj.Body))),
	}
	if obj.ContentType != "" {
		in.ContentType = aws.String(obj.ContentType)
	}
	if s.acl != "" {
		in.ACL = s.acl
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("storage: put %s/%s: %w", s.bucket, obj.Key, err)
	}
	return s.PublicURL(obj.Key), nil
}

// PublicURL is the virtual-hosted AWS URL of key, or a path-style URL under
// the custom endpoint when one is configured.
func (s *S3Store) PublicURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
