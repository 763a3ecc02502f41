// Package s3 serves s3://bucket/key resources through ranged GetObject calls.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/rangedl/internal/utils"
)

type Source struct {
	api objectAPI
}

func New(ctx context.Context, cfg utils.S3ClientConfig) (*Source, error) {
	client, err := getS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Source{api: client}, nil
}

func parseS3URL(url string) (string, string, error) {
	if !strings.HasPrefix(url, "s3://") {
		return "", "", fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, url)
	}
	parts := strings.SplitN(strings.TrimPrefix(url, "s3://"), "/", 2)
	if parts[0] == "" || len(parts) < 2 || parts[1] == "" || strings.HasSuffix(parts[1], "/") {
		return "", "", fmt.Errorf("invalid S3 object URL %q", url)
	}
	return parts[0], parts[1], nil
}

func (s *Source) ContentLength(ctx context.Context, url string) (int64, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return 0, err
	}
	headObj, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("error getting S3 object info: %w", err)
	}
	if headObj.ContentLength == nil {
		return 0, utils.ErrMissingContentLength
	}
	log.Debug().Str("op", "s3/head").Msgf("s3://%s/%s is %d bytes", bucket, key, *headObj.ContentLength)
	return *headObj.ContentLength, nil
}

// Fetch reads bytes from..to (inclusive) of the object.
func (s *Source) Fetch(ctx context.Context, url string, from, to int64) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	result, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", from, to)),
	})
	if err != nil {
		return nil, fmt.Errorf("error getting object: %w", err)
	}
	return result.Body, nil
}
