package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig configures an S3-compatible bucket used for frames.
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	Prefix        string // object key prefix, e.g. "frames"
	PublicBaseURL string // empty = derived from the endpoint
}

// MinIOPublisher stores frames in a bucket whose policy allows anonymous
// reads, so every stored object is public the moment it is written.
type MinIOPublisher struct {
	client  *miniogo.Client
	bucket  string
	prefix  string
	baseURL string
	logger  *slog.Logger
}

func NewMinIOPublisher(cfg MinIOConfig, logger *slog.Logger) (*MinIOPublisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimRight(client.EndpointURL().String(), "/")
	}

	return &MinIOPublisher{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: baseURL,
		logger:  logger,
	}, nil
}

func (p *MinIOPublisher) Name() string { return "minio" }

// EnsureBucket creates the bucket if needed and applies the public-read
// policy.
func (p *MinIOPublisher) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", p.bucket, err)
	}
	if !exists {
		if err := p.client.MakeBucket(ctx, p.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", p.bucket, err)
		}
		p.logger.Info("created frame bucket", "bucket", p.bucket)
	}

	if err := p.client.SetBucketPolicy(ctx, p.bucket, publicReadPolicy(p.bucket, p.prefix)); err != nil {
		return fmt.Errorf("set public policy on %s: %w", p.bucket, err)
	}
	return nil
}

func (p *MinIOPublisher) Publish(ctx context.Context, image []byte, suggestedName string) (string, error) {
	if len(image) == 0 {
		return "", &Error{Op: "upload", Err: ErrEmptyImage}
	}

	key := objectKey(p.prefix, suggestedName)
	_, err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(image), int64(len(image)), miniogo.PutObjectOptions{
		ContentType: imageContentType,
	})
	if err != nil {
		return "", &Error{Op: "upload", StatusCode: miniogo.ToErrorResponse(err).StatusCode, Err: err}
	}

	p.logger.Debug("frame published to bucket", "bucket", p.bucket, "key", key, "bytes", len(image))
	return key, nil
}

func (p *MinIOPublisher) Link(_ context.Context, artifactID string) (string, error) {
	return objectURL(p.baseURL, p.bucket, artifactID)
}

// objectKey makes a unique key so repeated runs never overwrite each other.
func objectKey(prefix, suggestedName string) string {
	name := path.Base("/" + suggestedName)
	if name == "/" || name == "." {
		name = "frame.jpg"
	}
	key := uuid.NewString() + "-" + name
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func objectURL(baseURL, bucket, key string) (string, error) {
	if key == "" {
		return "", &Error{Op: "link", Err: errors.New("empty object key")}
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", &Error{Op: "link", Err: err}
	}
	u = u.JoinPath(bucket, key)
	return u.String(), nil
}

func publicReadPolicy(bucket, prefix string) string {
	resource := "arn:aws:s3:::" + bucket + "/*"
	if prefix != "" {
		resource = "arn:aws:s3:::" + bucket + "/" + prefix + "/*"
	}
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["%s"]}]}`, resource)
}
