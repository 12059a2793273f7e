package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/xerrors"

	"github.com/metasync/metasync/node/config"
)

type s3Bucket struct {
	cli    *s3.Client
	bucket string
}

// S3Client object store client backed by one s3 compatible endpoint per
// bucket id.
type S3Client struct {
	buckets map[string]*s3Bucket
}

// NewS3Client builds clients for every configured bucket.
func NewS3Client(ctx context.Context, cfgs []config.BucketCfg) (*S3Client, error) {
	buckets := make(map[string]*s3Bucket, len(cfgs))

	for _, bc := range cfgs {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(bc.Region),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(bc.AccessKeyID, bc.SecretAccessKey, "")),
		)
		if err != nil {
			return nil, xerrors.Errorf("load aws config for bucket %s: %w", bc.Name, err)
		}

		endpoint := bc.Endpoint
		cli := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if endpoint != "" {
				o.EndpointResolver = s3.EndpointResolverFromURL(endpoint)
			}
			o.UsePathStyle = true
		})

		buckets[bc.Name] = &s3Bucket{cli: cli, bucket: bc.Bucket}
	}

	return &S3Client{buckets: buckets}, nil
}

func (c *S3Client) bucket(id string) (*s3Bucket, error) {
	b, ok := c.buckets[id]
	if !ok {
		return nil, xerrors.Errorf("bucket %s is not configured", id)
	}
	return b, nil
}

// Download fetches the full object from the bucket.
func (c *S3Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	b, err := c.bucket(bucket)
	if err != nil {
		return nil, err
	}

	out, err := b.cli.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Errorf("get object %s from %s: %w", key, bucket, err)
	}
	defer out.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, xerrors.Errorf("read object %s from %s: %w", key, bucket, err)
	}

	return data, nil
}

// Upload writes the object and returns the content length the backend
// reports back, so the caller can verify it against the expected size.
func (c *S3Client) Upload(ctx context.Context, bucket, key string, data []byte) (int64, error) {
	b, err := c.bucket(bucket)
	if err != nil {
		return 0, err
	}

	_, err = b.cli.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: int64(len(data)),
	})
	if err != nil {
		return 0, xerrors.Errorf("put object %s to %s: %w", key, bucket, err)
	}

	head, err := b.cli.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, xerrors.Errorf("head object %s in %s: %w", key, bucket, err)
	}

	return head.ContentLength, nil
}

var _ Client = (*S3Client)(nil)
