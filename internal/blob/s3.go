package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// PublicBaseURL, when set, is used to build object URLs directly.
	// Otherwise URLs are presigned GETs valid for PresignExpiry.
	PublicBaseURL string
	PresignExpiry time.Duration
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type s3Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store keeps blobs in an S3-compatible bucket.
type S3Store struct {
	client    s3API
	presigner s3Presigner
	bucket    string
	publicURL string
	expiry    time.Duration
}

// NewS3Store builds a store with static credentials.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		publicURL: cfg.PublicBaseURL,
		expiry:    expiry,
	}, nil
}

// Put uploads obj and returns its key as the locator.
func (s *S3Store) Put(ctx context.Context, obj Object) (Locator, error) {
	if err := validateKey(obj.Key); err != nil {
		return "", err
	}
	if obj.Body == nil || obj.Size == 0 {
		return "", ErrEmptyObject
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(obj.Key),
		Body:   obj.Body,
	}
	if obj.ContentType != "" {
		in.ContentType = aws.String(obj.ContentType)
	}
	if obj.Size > 0 {
		in.ContentLength = aws.Int64(obj.Size)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %q: %w", obj.Key, err)
	}

	return Locator(obj.Key), nil
}

// Resolve returns a public or presigned GET URL for loc.
func (s *S3Store) Resolve(ctx context.Context, loc Locator) (string, error) {
	if err := validateKey(string(loc)); err != nil {
		return "", err
	}
	if s.publicURL != "" {
		return joinURL(s.publicURL, string(loc)), nil
	}

	req, err := s.presigner.PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(string(loc)),
		},
		s3.WithPresignExpires(s.expiry),
	)
	if err != nil {
		return "", fmt.Errorf("presign get object %q: %w", loc, err)
	}
	return req.URL, nil
}

// Delete removes the object. S3 treats missing keys as success.
func (s *S3Store) Delete(ctx context.Context, loc Locator) error {
	if err := validateKey(string(loc)); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(string(loc)),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", loc, err)
	}
	return nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket %q: %w", s.bucket, err)
	}
	return nil
}
