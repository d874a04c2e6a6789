package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutAndDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := NewFileStore(FileStoreConfig{Fs: fs, Root: "/blobs", PublicURL: "http://localhost:8080/media/"})
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "entries/e-1/a-1.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/entries/e-1/a-1.png", url)

	data, err := afero.ReadFile(fs, "/blobs/entries/e-1/a-1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	served, err := afero.ReadFile(store.Filesystem(), "entries/e-1/a-1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), served)

	require.NoError(t, store.Delete(context.Background(), "entries/e-1/a-1.png"))
	exists, err := afero.Exists(fs, "/blobs/entries/e-1/a-1.png")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Delete(context.Background(), "entries/e-1/a-1.png"), "deleting a missing blob is not an error")
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	store, err := NewFileStore(FileStoreConfig{Fs: afero.NewMemMapFs(), Root: "/blobs"})
	require.NoError(t, err)

	for _, key := range []string{"", "  ", "../etc/passwd", "entries/../../x", "/"} {
		_, err := store.Put(context.Background(), key, "image/png", []byte("x"))
		assert.True(t, errors.Is(err, ErrInvalidKey), "key %q should be rejected, got %v", key, err)
	}
}

func TestNewFileStoreRequiresFilesystem(t *testing.T) {
	_, err := NewFileStore(FileStoreConfig{})
	assert.ErrorIs(t, err, ErrMissingFilesystem)
}

type fakeObjectClient struct {
	puts    []*s3.PutObjectInput
	deletes []*s3.DeleteObjectInput
	body    []byte
	putErr  error
}

func (c *fakeObjectClient) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.puts = append(c.puts, params)
	if c.putErr != nil {
		return nil, c.putErr
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	c.body = body
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeObjectClient) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.deletes = append(c.deletes, params)
	return &s3.DeleteObjectOutput{}, nil
}

func stubS3(t *testing.T, client *fakeObjectClient) *string {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	var baseEndpoint string
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var options awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&options))
		}
		assert.Equal(t, "us-east-1", options.Region)
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectClient {
		var options s3.Options
		for _, fn := range optFns {
			fn(&options)
		}
		if options.BaseEndpoint != nil {
			baseEndpoint = *options.BaseEndpoint
		}
		assert.True(t, options.UsePathStyle)
		return client
	}
	return &baseEndpoint
}

func TestS3StorePutAndDelete(t *testing.T) {
	client := &fakeObjectClient{}
	baseEndpoint := stubS3(t, client)

	store, err := NewS3Store(context.Background(), S3Config{
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000",
		Bucket:    "journal",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", *baseEndpoint)

	url, err := store.Put(context.Background(), "entries/e-1/a-1.jpg", "image/jpeg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/journal/entries/e-1/a-1.jpg", url)
	require.Len(t, client.puts, 1)
	assert.Equal(t, "journal", aws.ToString(client.puts[0].Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(client.puts[0].ContentType))
	assert.Equal(t, []byte("jpeg"), client.body)

	require.NoError(t, store.Delete(context.Background(), "entries/e-1/a-1.jpg"))
	require.Len(t, client.deletes, 1)
	assert.Equal(t, "entries/e-1/a-1.jpg", aws.ToString(client.deletes[0].Key))
}

func TestS3StoreWrapsPutFailure(t *testing.T) {
	client := &fakeObjectClient{putErr: errors.New("connection refused")}
	stubS3(t, client)

	store, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1", Endpoint: "http://minio:9000", Bucket: "journal"})
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "a.png", "image/png", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, ErrMissingBucket)
}
