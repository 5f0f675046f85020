package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []string
	putErr  error
	headErr error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

type fakePresigner struct {
	expiry time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expiry = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key) + "?sig=1"}, nil
}

func newFakeS3Store(publicURL string) (*S3Store, *fakeS3, *fakePresigner) {
	client := &fakeS3{}
	presigner := &fakePresigner{}
	return &S3Store{
		client:    client,
		presigner: presigner,
		bucket:    "doors",
		publicURL: publicURL,
		expiry:    10 * time.Minute,
	}, client, presigner
}

func TestS3Store_Put(t *testing.T) {
	store, client, _ := newFakeS3Store("")

	loc, err := store.Put(context.Background(), Object{
		Key:         "images/a.png",
		ContentType: "image/png",
		Size:        3,
		Body:        bytes.NewReader([]byte("png")),
	})
	require.NoError(t, err)
	assert.Equal(t, Locator("images/a.png"), loc)

	require.Len(t, client.puts, 1)
	assert.Equal(t, "doors", aws.ToString(client.puts[0].Bucket))
	assert.Equal(t, "image/png", aws.ToString(client.puts[0].ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(client.puts[0].ContentLength))
}

func TestS3Store_PutFailure(t *testing.T) {
	store, client, _ := newFakeS3Store("")
	client.putErr = errors.New("connection refused")

	_, err := store.Put(context.Background(), Object{Key: "images/a.png", Size: 1, Body: bytes.NewReader([]byte("x"))})
	assert.Error(t, err)
}

func TestS3Store_PutEmpty(t *testing.T) {
	store, client, _ := newFakeS3Store("")

	_, err := store.Put(context.Background(), Object{Key: "images/a.png", Body: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrEmptyObject)
	assert.Empty(t, client.puts)
}

func TestS3Store_ResolvePublic(t *testing.T) {
	store, _, _ := newFakeS3Store("https://cdn.example.com/doors/")

	url, err := store.Resolve(context.Background(), "images/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/doors/images/a.png", url)
}

func TestS3Store_ResolvePresigned(t *testing.T) {
	store, _, presigner := newFakeS3Store("")

	url, err := store.Resolve(context.Background(), "images/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/doors/images/a.png?sig=1", url)
	assert.Equal(t, 10*time.Minute, presigner.expiry)
}

func TestS3Store_DeleteAndPing(t *testing.T) {
	store, client, _ := newFakeS3Store("")

	require.NoError(t, store.Delete(context.Background(), "images/a.png"))
	assert.Equal(t, []string{"images/a.png"}, client.deletes)

	require.NoError(t, store.Ping(context.Background()))
	client.headErr = errors.New("forbidden")
	assert.Error(t, store.Ping(context.Background()))
}

func TestNewS3Store(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)

	store, err := NewS3Store(S3Config{
		Bucket:          "doors",
		Region:          "eu-central-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, store.expiry)

	url, err := store.Resolve(context.Background(), "images/a.png")
	require.NoError(t, err)
	assert.Contains(t, url, "http://localhost:9000/doors/images/a.png")
	assert.Contains(t, url, "X-Amz-Signature")
}
