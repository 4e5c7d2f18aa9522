package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ColdStorage is a write-once sink for archived batches.
type ColdStorage interface {
	Store(ctx context.Context, key string, data []byte) error
}

// S3Client is the slice of the AWS S3 API the archiver uses. Narrowed for
// mocking in tests.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures S3 or an S3-compatible service as cold storage.
type S3Config struct {
	Bucket         string `env:"ARCHIVE_S3_BUCKET"`
	Region         string `env:"ARCHIVE_S3_REGION"`
	AccessKeyID    string `env:"ARCHIVE_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"ARCHIVE_S3_SECRET_KEY"`
	Endpoint       string `env:"ARCHIVE_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"ARCHIVE_S3_FORCE_PATH_STYLE" envDefault:"false"`
}

// S3ColdStorage writes archive batches to an S3 bucket.
type S3ColdStorage struct {
	client S3Client
	bucket string
}

// S3StorageOption configures S3ColdStorage construction.
type S3StorageOption func(*s3StorageOptions)

type s3StorageOptions struct {
	client S3Client
}

// WithS3Client injects a pre-configured client, for tests.
func WithS3Client(client S3Client) S3StorageOption {
	return func(o *s3StorageOptions) { o.client = client }
}

// NewS3ColdStorage builds cold storage over S3. Static credentials are used
// when provided; otherwise the SDK's default chain applies.
func NewS3ColdStorage(ctx context.Context, cfg S3Config, opts ...S3StorageOption) (*S3ColdStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}

	options := &s3StorageOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.client != nil {
		return &S3ColdStorage{client: options.client, bucket: cfg.Bucket}, nil
	}

	if cfg.Region == "" {
		return nil, fmt.Errorf("%w: region is required", ErrInvalidConfig)
	}

	awsOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		awsOptions = append(awsOptions,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: loading aws config: %v", ErrInvalidConfig, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &S3ColdStorage{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3ColdStorage) Store(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("%w: putting %s: %v", ErrColdStorage, key, err)
	}
	return nil
}

// MemoryColdStorage keeps archived batches in memory, for tests.
type MemoryColdStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryColdStorage creates an empty in-memory sink.
func NewMemoryColdStorage() *MemoryColdStorage {
	return &MemoryColdStorage{objects: make(map[string][]byte)}
}

func (s *MemoryColdStorage) Store(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

// Objects returns a snapshot of stored keys to payloads.
func (s *MemoryColdStorage) Objects() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.objects))
	for k, v := range s.objects {
		out[k] = v
	}
	return out
}
