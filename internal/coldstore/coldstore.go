// Package coldstore implements the optional durable S3-compatible backend
// referenced in §4.F/§4.G as a Placement provider of last resort, adapted
// from internal/s3/client.go nearly file-for-file: same Client interface
// shape and AWS SDK v2 wiring, repurposed from the gateway's only backend
// into one durable "cold tier" that backstops the peer-to-peer network
// when live providers are exhausted.
package coldstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dreamware/msscs/internal/config"
	"github.com/dreamware/msscs/internal/engine"
	"github.com/dreamware/msscs/internal/ids"
)

// Client is the minimal S3 surface ColdStore drives.
type Client interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

type s3Client struct {
	client *s3.Client
}

// NewClient builds an S3-compatible Client from a ColdTierConfig.
func NewClient(ctx context.Context, cfg config.ColdTierConfig) (Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("coldstore: load AWS config: %w", err)
	}

	opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &s3Client{client: s3.NewFromConfig(awsCfg, opts...)}, nil
}

func (c *s3Client) PutObject(ctx context.Context, bucket, key string, reader io.Reader) error {
	body, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("coldstore: read object data: %w", err)
	}
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("coldstore: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *s3Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("coldstore: get %s/%s: %w", bucket, key, err)
	}
	return result.Body, nil
}

func (c *s3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("coldstore: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// ColdStore durably stores content-addressed blocks by hex content id,
// used as the pipeline's backstop tier rather than its primary path.
type ColdStore struct {
	client Client
	bucket string
}

// New wraps an already-constructed Client for the given bucket.
func New(client Client, bucket string) *ColdStore {
	return &ColdStore{client: client, bucket: bucket}
}

func key(cid ids.ContentId) string { return "blocks/" + cid.String() }

// Put durably stores data under cid's hex encoding.
func (c *ColdStore) Put(ctx context.Context, cid ids.ContentId, data []byte) error {
	return c.client.PutObject(ctx, c.bucket, key(cid), bytes.NewReader(data))
}

// Get retrieves and verifies the bytes stored under cid, returning
// NotFound-flavored errors as engine.ErrNotFound and failing
// engine.ErrCorruptShard if the retrieved bytes don't hash back to cid
// (the cold tier is outside the content-addressed trust boundary of
// Placement's own fetch-and-verify path, so it re-verifies independently).
func (c *ColdStore) Get(ctx context.Context, cid ids.ContentId) ([]byte, error) {
	body, err := c.client.GetObject(ctx, c.bucket, key(cid))
	if err != nil {
		return nil, fmt.Errorf("coldstore: %w: %v", engine.ErrNotFound, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("coldstore: read body: %w", err)
	}
	if ids.Hash(data) != cid {
		return nil, engine.ErrCorruptShard
	}
	return data, nil
}

// Delete removes the object stored under cid, if any.
func (c *ColdStore) Delete(ctx context.Context, cid ids.ContentId) error {
	return c.client.DeleteObject(ctx, c.bucket, key(cid))
}
