package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/utils"
)

const s3KeyPrefix = "blobs"

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
}

func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("%w: s3 bucket missing", errs.ErrInvalidConfiguration)
	}
	if c.Region == "" {
		return fmt.Errorf("%w: s3 region missing", errs.ErrInvalidConfiguration)
	}
	return nil
}

// S3Store writes blobs into a bucket under their BLAKE3 digest, so the same
// content is stored once. The digest is the blob id.
type S3Store struct {
	client *s3.Client
	bucket string
}

var _ Store = (*S3Store)(nil)

func NewS3Store(ctx context.Context, cfg *S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          64,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", errs.ErrInvalidConfiguration, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		// retries belong to the sync retry policy
		o.RetryMaxAttempts = 1
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3Store) Upload(ctx context.Context, name string, data []byte) (string, error) {
	id := Digest(data)
	key := path.Join(s3KeyPrefix, id)

	exists, err := s.exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		slog.Debug("s3 blob exists", "name", name, "key", key)
		return id, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(utils.DetectContentType(name)),
		Metadata:      map[string]string{"source-path": name},
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %q: %w", key, classifyS3(err))
	}

	return id, nil
}

func (s *S3Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err == nil {
		return true, nil
	}
	if statusOf(err) == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("s3 head %q: %w", key, classifyS3(err))
}

func classifyS3(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	status := statusOf(err)
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", errs.ErrRejected, err)
	}
	return fmt.Errorf("%w: %w", errs.ErrUnavailable, err)
}

func statusOf(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
