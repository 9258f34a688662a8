// Package storage builds per-request S3 clients from bucket registrations
// and exposes the flat object operations the emulator is built on.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	ProviderS3 = "s3"
	ProviderR2 = "r2"

	defaultRegion = "us-east-1"
	// S3 DeleteObjects accepts at most 1000 keys per call.
	deleteBatchMax = 1000
)

// Config carries everything needed to reach one remote bucket.
// Credentials arrive already opened; sealing is the caller's concern.
type Config struct {
	Provider        string // s3|r2
	Bucket          string
	Region          string // s3 only; defaulted when empty
	Endpoint        string // required for r2
	AccessKeyID     string
	SecretAccessKey string
}

type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ContentType  string    `json:"contentType,omitempty"`
}

// ListPage is one page of a prefix+delimiter listing. NextToken is the
// provider's opaque continuation token and must not be assumed stable
// across concurrent mutations.
type ListPage struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
	NextToken      string
	Truncated      bool
}

// KeyError reports a single failed key from a batch delete.
type KeyError struct {
	Key     string
	Message string
}

type Client struct {
	api     *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New maps a registration onto an S3 client. R2 uses the account endpoint
// with path-style addressing and region "auto"; plain S3 uses the
// registration region (default us-east-1) with virtual-hosted style.
func New(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	region := cfg.Region
	pathStyle := false
	var endpoint *string
	switch cfg.Provider {
	case ProviderR2:
		if cfg.Endpoint == "" {
			return nil, errors.New("storage: r2 requires an endpoint")
		}
		region = "auto"
		pathStyle = true
		endpoint = aws.String(cfg.Endpoint)
	case ProviderS3, "":
		if region == "" {
			region = defaultRegion
		}
	default:
		return nil, errors.New("storage: unknown provider " + cfg.Provider)
	}
	awsCfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = pathStyle
	})
	return &Client{api: api, presign: s3.NewPresignClient(api), bucket: cfg.Bucket}, nil
}

// Check verifies connectivity and credentials with a MaxKeys=1 listing.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		MaxKeys: aws.Int32(1),
	})
	return err
}

func (c *Client) ListPage(ctx context.Context, prefix, delimiter, token string, maxKeys int32) (*ListPage, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}
	if maxKeys > 0 {
		in.MaxKeys = aws.Int32(maxKeys)
	}
	out, err := c.api.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, err
	}
	page := &ListPage{Truncated: aws.ToBool(out.IsTruncated)}
	for _, o := range out.Contents {
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          aws.ToString(o.Key),
			Size:         aws.ToInt64(o.Size),
			LastModified: aws.ToTime(o.LastModified),
		})
	}
	for _, cp := range out.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	page.NextToken = aws.ToString(out.NextContinuationToken)
	return page, nil
}

func (c *Client) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	_, err := c.api.PutObject(ctx, in)
	return err
}

func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, err
	}
	info := &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
	}
	return out.Body, info, nil
}

func (c *Client) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return err
}

// DeleteBatch removes keys in chunks of 1000. Per-key failures are
// collected and returned; a transport error aborts the remaining chunks.
// A key that was already gone is not an error (the provider treats it as
// deleted).
func (c *Client) DeleteBatch(ctx context.Context, keys []string) ([]KeyError, error) {
	var failed []KeyError
	for start := 0; start < len(keys); start += deleteBatchMax {
		end := start + deleteBatchMax
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return failed, err
		}
		for _, e := range out.Errors {
			failed = append(failed, KeyError{Key: aws.ToString(e.Key), Message: aws.ToString(e.Message)})
		}
	}
	return failed, nil
}

// Copy duplicates srcKey to dstKey within the same bucket.
func (c *Client) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := c.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(c.bucket + "/" + srcKey),
		Key:        aws.String(dstKey),
	})
	return err
}

func (c *Client) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (c *Client) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	req, err := c.presign.PresignPutObject(ctx, in, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// IsNotFound reports whether the error is the provider's key-not-found
// answer. Deleting or copying a marker that never existed relies on this.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nosuchkey") || strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}

// IsNoSuchBucket reports whether the error indicates a missing bucket.
func IsNoSuchBucket(err error) bool {
	if err == nil {
		return false
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nosuchbucket") || strings.Contains(msg, "bucket does not exist")
}
