package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3Store struct {
	input    *S3StoreInput
	s3       *s3.Client
	uploader *manager.Uploader
}

type S3StoreInput struct {
	AwsConfig aws.Config
	Bucket    string
	// Endpoint overrides the S3 endpoint so any S3-compatible store can back
	// the artifacts bucket. Empty means the SDK default.
	Endpoint string
}

func NewS3Store(input *S3StoreInput) Store {
	client := s3.NewFromConfig(input.AwsConfig, func(o *s3.Options) {
		if input.Endpoint != "" {
			o.BaseEndpoint = aws.String(input.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &s3Store{
		input:    input,
		s3:       client,
		uploader: manager.NewUploader(client),
	}
}

func (s *s3Store) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &s.input.Bucket,
		Key:    &key,
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("uploading %s failed: %w", key, err)
	}
	slog.Debug("uploaded artifact", slog.String("key", key))
	return nil
}

func (s *s3Store) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.input.Bucket,
		Key:    &key,
	})
	var noKey *s3Types.NoSuchKey
	if errors.As(err, &noKey) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("downloading %s failed: %w", key, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	var continuation *string
	for {
		resp, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.input.Bucket,
			Prefix:            &prefix,
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("listing %s failed: %w", prefix, err)
		}
		for _, obj := range resp.Contents {
			keys = append(keys, *obj.Key)
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		continuation = resp.NextContinuationToken
	}
	return keys, nil
}
