// Package archive stores executor replies in S3-compatible object storage so
// operators can reconcile remote runs with local job records.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Event names the job transition a transcript belongs to.
type Event string

const (
	EventStart Event = "start"
	EventStop  Event = "stop"
)

// Store saves a transcript and returns the object key.
type Store interface {
	Save(ctx context.Context, userID, jobID int64, event Event, body string, at time.Time) (string, error)
}

// Options configures the S3 store.
type Options struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) putObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type S3Store struct {
	client putObjectAPI
	bucket string
}

// NewS3Store builds an S3 client with static credentials. A non-empty
// BaseEndpoint selects path-style addressing for MinIO and friends.
func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config error: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

// ObjectKey lays transcripts out by owner and day.
func ObjectKey(userID, jobID int64, event Event, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("jobs/%d/%04d/%02d/%02d/%d-%s-%d.txt",
		userID, at.Year(), at.Month(), at.Day(), jobID, event, at.UnixNano())
}

func (s *S3Store) Save(ctx context.Context, userID, jobID int64, event Event, body string, at time.Time) (string, error) {
	key := ObjectKey(userID, jobID, event, at)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put error: %w", err)
	}
	return key, nil
}

// Noop discards transcripts. Used when no bucket is configured.
type Noop struct{}

func (Noop) Save(context.Context, int64, int64, Event, string, time.Time) (string, error) {
	return "", nil
}
