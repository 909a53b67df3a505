package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asergian/beacon-sub001/config"
)

type fakeS3 struct {
	objects map[string][]byte
	acl     map[string]string
	failErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, acl: map[string]string{}}
}

func (f *fakeS3) Upload(_ context.Context, in s3manager.UploadInput) error {
	if f.failErr != nil {
		return f.failErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return err
	}
	key := aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)
	f.objects[key] = body
	f.acl[key] = aws.StringValue(in.ACL)
	return nil
}

func (f *fakeS3) Download(_ context.Context, bucket, key string) ([]byte, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return data, nil
}

func (f *fakeS3) ListFiles(_ context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for k := range f.objects {
		key := strings.TrimPrefix(k, bucket+"/")
		if key != k && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (f *fakeS3) Delete(_ context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func TestObjectStorage_RoundTrip(t *testing.T) {
	client := newFakeS3()
	svc := NewStorageService(client, StorageConfig{BucketName: "quarantine"})
	ctx := context.Background()

	require.NoError(t, svc.Upload(ctx, "quarantine/u1/2026-03-06/m1.eml", []byte("raw"), "message/rfc822"))
	assert.Equal(t, "", client.acl["quarantine/quarantine/u1/2026-03-06/m1.eml"])

	data, err := svc.Download(ctx, "quarantine/u1/2026-03-06/m1.eml")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), data)

	keys, err := svc.List(ctx, "quarantine/u1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"quarantine/u1/2026-03-06/m1.eml"}, keys)

	require.NoError(t, svc.Delete(ctx, "quarantine/u1/2026-03-06/m1.eml"))
	_, err = svc.Download(ctx, "quarantine/u1/2026-03-06/m1.eml")
	assert.Error(t, err)
}

func TestObjectStorage_PublicUpload(t *testing.T) {
	client := newFakeS3()
	svc := NewStorageService(client, StorageConfig{BucketName: "b", IsPublic: true, CDNDomain: "cdn.example.com"})

	require.NoError(t, svc.Upload(context.Background(), "k", []byte("x"), "text/plain"))
	assert.Equal(t, "public-read", client.acl["b/k"])
	assert.Equal(t, "https://cdn.example.com/k", svc.GetPublicURL("k"))
}

func TestObjectStorage_UploadError(t *testing.T) {
	client := newFakeS3()
	client.failErr = errors.New("access denied")
	svc := NewStorageService(client, StorageConfig{BucketName: "b"})

	err := svc.Upload(context.Background(), "k", []byte("x"), "text/plain")
	assert.EqualError(t, err, "access denied")
	assert.Equal(t, "", svc.GetPublicURL("k"))
}

func TestNewQuarantineStorage_Disabled(t *testing.T) {
	svc, err := NewQuarantineStorage(&config.R2StorageConfig{QuarantineEnable: false})
	require.NoError(t, err)
	assert.Nil(t, svc)

	svc, err = NewQuarantineStorage(nil)
	require.NoError(t, err)
	assert.Nil(t, svc)
}

func TestNewQuarantineStorage_R2(t *testing.T) {
	svc, err := NewQuarantineStorage(&config.R2StorageConfig{
		QuarantineEnable: true,
		AccountID:        "acc",
		AccessKeyID:      "id",
		AccessKeySecret:  "secret",
		QuarantineBucket: "beacon-quarantine",
	})
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, "beacon-quarantine", svc.(*ObjectStorageService).bucketName)
}
