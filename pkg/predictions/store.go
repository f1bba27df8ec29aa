// Package predictions serves cached prediction documents from blob storage
// and redacts them by subscription tier.
package predictions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"predictium_backend/pkg/config"
)

var (
	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("prediction document not found")
	// ErrUnavailable covers backend errors and malformed payloads; the
	// distinction is never surfaced to callers.
	ErrUnavailable = errors.New("predictions are currently unavailable")
)

const fetchTimeout = 10 * time.Second

// Store reads raw prediction documents by key.
type Store interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// ObjectGetter is the slice of the S3 API the store depends on.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads JSON prediction documents from the predictions bucket.
type S3Store struct {
	client ObjectGetter
	bucket string
	log    zerolog.Logger
}

// NewS3Client builds an S3 client from config, preferring static credentials
// when provided and falling back to the default chain otherwise.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg), nil
}

func NewS3Store(client ObjectGetter, bucket string, log zerolog.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, log: log}
}

// Fetch reads one object. Calls fail closed: anything other than a clean
// read maps to ErrNotFound or ErrUnavailable.
func (s *S3Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			s.log.Warn().Str("key", key).Msg("S3 object not found")
			return nil, ErrNotFound
		}
		s.log.Error().Err(err).Str("key", key).Msg("S3 read failed")
		return nil, ErrUnavailable
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("reading S3 object body failed")
		return nil, ErrUnavailable
	}
	return body, nil
}
