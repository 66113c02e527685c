package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xtxerr/airq/internal/errors"
)

// S3Options configures access to s3:// sources.
type S3Options struct {
	Region    string
	Endpoint  string // custom endpoint (e.g., MinIO); empty for AWS
	PathStyle bool
}

// Opener opens source URIs. Local paths are opened from disk; s3://bucket/key
// URIs stream the object body. The S3 client is created on first successful
// use; a failed load is retried by the next call.
type Opener struct {
	opts       S3Options
	loadConfig func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error)

	mu     sync.Mutex
	client *s3.Client
}

// NewOpener creates an opener with the given S3 options.
func NewOpener(opts S3Options) *Opener {
	return &Opener{opts: opts, loadConfig: awsconfig.LoadDefaultConfig}
}

// Open returns a reader for uri. Failures wrap errors.ErrSourceIO.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if strings.Contains(uri, "://") && !strings.HasPrefix(uri, "s3://") {
		return nil, fmt.Errorf("%s: %w", uri, errors.ErrUnsupportedSource)
	}

	if strings.HasPrefix(uri, "s3://") {
		return o.openS3(ctx, uri)
	}

	f, err := os.Open(uri)
	if err != nil {
		return nil, errors.NewSourceIO(uri, err)
	}
	return f, nil
}

func (o *Opener) openS3(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	client, err := o.s3Client(ctx)
	if err != nil {
		return nil, errors.NewSourceIO(uri, err)
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.NewSourceIO(uri, err)
	}
	return resp.Body, nil
}

func (o *Opener) s3Client(ctx context.Context) (*s3.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if o.opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.opts.Region))
	}

	cfg, err := o.loadConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	o.client = s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.opts.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.opts.Endpoint)
		}
		so.UsePathStyle = o.opts.PathStyle
	})
	return o.client, nil
}

// ParseS3URI splits s3://bucket/key into its parts. The key is required.
func ParseS3URI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, "s3://") {
		return "", "", fmt.Errorf("%s: must start with s3://: %w", uri, errors.ErrUnsupportedSource)
	}

	path := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("%s: missing bucket name: %w", uri, errors.ErrUnsupportedSource)
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", "", fmt.Errorf("%s: missing object key: %w", uri, errors.ErrUnsupportedSource)
	}

	return parts[0], parts[1], nil
}
