package storage

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{Provider: ProviderS3}); err == nil {
		t.Fatal("missing bucket should be rejected")
	}
	if _, err := New(Config{Provider: ProviderR2, Bucket: "b"}); err == nil {
		t.Fatal("r2 without endpoint should be rejected")
	}
	if _, err := New(Config{Provider: "gcs", Bucket: "b"}); err == nil {
		t.Fatal("unknown provider should be rejected")
	}
}

func TestNewProviderMapping(t *testing.T) {
	c, err := New(Config{Provider: ProviderS3, Bucket: "b", AccessKeyID: "ak", SecretAccessKey: "sk"})
	if err != nil {
		t.Fatalf("s3 config: %v", err)
	}
	if c.api.Options().Region != defaultRegion {
		t.Fatalf("expected default region, got %s", c.api.Options().Region)
	}
	if c.api.Options().UsePathStyle {
		t.Fatal("s3 should use virtual-hosted style")
	}

	c, err = New(Config{Provider: ProviderR2, Bucket: "b", Endpoint: "https://acct.r2.cloudflarestorage.com", AccessKeyID: "ak", SecretAccessKey: "sk"})
	if err != nil {
		t.Fatalf("r2 config: %v", err)
	}
	opts := c.api.Options()
	if opts.Region != "auto" {
		t.Fatalf("r2 region should be auto, got %s", opts.Region)
	}
	if !opts.UsePathStyle {
		t.Fatal("r2 should force path-style")
	}
	if opts.BaseEndpoint == nil || *opts.BaseEndpoint != "https://acct.r2.cloudflarestorage.com" {
		t.Fatal("r2 endpoint not applied")
	}
}

func TestNewRegionOverride(t *testing.T) {
	c, err := New(Config{Provider: ProviderS3, Bucket: "b", Region: "eu-west-1"})
	if err != nil {
		t.Fatal(err)
	}
	if c.api.Options().Region != "eu-west-1" {
		t.Fatalf("region override lost, got %s", c.api.Options().Region)
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(nil) {
		t.Fatal("nil is not not-found")
	}
	if !IsNotFound(&types.NoSuchKey{}) {
		t.Fatal("NoSuchKey should be not-found")
	}
	if !IsNotFound(errors.New("operation error S3: HeadObject, https response error StatusCode: 404")) {
		t.Fatal("404 message should be not-found")
	}
	if IsNotFound(errors.New("access denied")) {
		t.Fatal("access denied is not not-found")
	}
}

func TestIsNoSuchBucket(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&types.NoSuchBucket{}, true},
		{errors.New("NoSuchBucket: the specified bucket does not exist"), true},
		{errors.New("permission denied"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsNoSuchBucket(c.err); got != c.want {
			t.Fatalf("IsNoSuchBucket(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
