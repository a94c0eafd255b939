// Package avatars issues presigned S3 upload URLs for user avatar images.
// Any S3-compatible backend works; MinIO is the development target.
package avatars

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
)

// Options configures the bucket and credentials of a Presigner.
type Options struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Expiry       time.Duration
}

// Presigner signs PUT requests so clients upload straight to the bucket.
type Presigner struct {
	opts   Options
	client *s3.PresignClient
}

// NewPresigner builds the S3 client once. No network traffic happens here or
// when signing; the backend is only contacted by the uploading client.
func NewPresigner(ctx context.Context, opts Options) (*Presigner, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &Presigner{opts: opts, client: newS3PresignClient(client)}, nil
}

// Expiry is how long a presigned URL stays valid.
func (p *Presigner) Expiry() time.Duration {
	return p.opts.Expiry
}

// PresignPut returns a URL accepting a single PUT of the object at key.
func (p *Presigner) PresignPut(ctx context.Context, key, contentType string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(p.opts.Bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	req, err := presignPutObject(p.client, ctx, in, s3.WithPresignExpires(p.opts.Expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PublicURL is the path-style address of key in the bucket.
func (p *Presigner) PublicURL(key string) string {
	return strings.TrimRight(p.opts.BaseEndpoint, "/") + "/" + p.opts.Bucket + "/" + key
}
