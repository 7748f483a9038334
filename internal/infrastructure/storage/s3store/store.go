package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/analysis"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/resilience"
)

type Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string

	ResilienceExecutor *resilience.Executor
}

// Store keeps exam images and overlay artifacts in one bucket.
type Store struct {
	client   *s3.Client
	bucket   string
	executor *resilience.Executor
}

// New loads the default AWS configuration chain. Static keys, when given,
// take precedence over the chain.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.BaseEndpoint
	if opts.Endpoint != "" {
		endpoint = aws.String(opts.Endpoint)
	}
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: endpoint,
		UsePathStyle: opts.UsePathStyle,
	})
	return NewWithClient(client, opts.Bucket, opts.ResilienceExecutor), nil
}

func NewWithClient(client *s3.Client, bucket string, executor *resilience.Executor) *Store {
	return &Store{client: client, bucket: bucket, executor: executor}
}

func (s *Store) Get(ctx context.Context, ref string) (domain.StoredObject, error) {
	return resilience.Call(ctx, s.executor, "storage.s3.get", func(ctx context.Context) (domain.StoredObject, error) {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(ref),
		})
		if err != nil {
			return domain.StoredObject{}, fmt.Errorf("get object %s: %w", ref, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return domain.StoredObject{}, fmt.Errorf("read object body: %w", err)
		}
		return domain.StoredObject{
			Data:        data,
			ContentType: analysis.DetectMIME(ref, aws.ToString(resp.ContentType), data),
		}, nil
	}, classifyS3Error)
}

func (s *Store) Put(ctx context.Context, ref string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = analysis.DetectMIME(ref, "", data)
	}
	return resilience.Call(ctx, s.executor, "storage.s3.put", func(ctx context.Context) (string, error) {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(ref),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType),
		})
		if err != nil {
			return "", fmt.Errorf("put object %s: %w", ref, err)
		}
		return ref, nil
	}, classifyS3Error)
}

// Delete removes ref. S3 reports success for keys that do not exist.
func (s *Store) Delete(ctx context.Context, ref string) error {
	return s.executor.Execute(ctx, "storage.s3.delete", func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(ref),
		})
		if err != nil {
			return fmt.Errorf("delete object %s: %w", ref, err)
		}
		return nil
	}, classifyS3Error)
}

func classifyS3Error(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return resilience.ErrorClassification{}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == http.StatusNotFound || status == http.StatusForbidden {
			return resilience.ErrorClassification{}
		}
		return resilience.ErrorClassification{
			Retryable:     status >= 500 || status == http.StatusTooManyRequests,
			RecordFailure: status >= 500,
		}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
