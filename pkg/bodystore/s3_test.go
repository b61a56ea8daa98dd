package bodystore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ministryofjustice/money-to-prisoners-common-sub000/pkg/bodystore"
)

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func newS3(t *testing.T, client bodystore.S3Client) *bodystore.S3 {
	t.Helper()
	store, err := bodystore.NewS3(context.Background(), bodystore.S3Config{
		Bucket: "spool-bodies",
		Region: "eu-west-2",
		Prefix: "bodies",
	}, bodystore.WithS3Client(client))
	require.NoError(t, err)
	return store
}

func TestNewS3(t *testing.T) {
	t.Parallel()

	_, err := bodystore.NewS3(context.Background(), bodystore.S3Config{Region: "eu-west-2"})
	assert.ErrorIs(t, err, bodystore.ErrInvalidConfig)

	_, err = bodystore.NewS3(context.Background(), bodystore.S3Config{Bucket: "b"})
	assert.ErrorIs(t, err, bodystore.ErrInvalidConfig)
}

func TestS3_PutGetDelete(t *testing.T) {
	t.Parallel()

	body := []byte(`{"context":{"name":"Jane"}}`)
	client := new(MockS3Client)
	defer client.AssertExpectations(t)

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		r, ok := in.Body.(*bytes.Reader)
		return ok && r.Size() == int64(len(body)) &&
			aws.ToString(in.Bucket) == "spool-bodies" &&
			aws.ToString(in.Key) == "bodies/job-1.json" &&
			aws.ToString(in.ContentType) == "application/json"
	}), mock.Anything).Return(&s3.PutObjectOutput{}, nil).Once()

	client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
		return aws.ToString(in.Key) == "bodies/job-1.json"
	}), mock.Anything).Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil).Once()

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "bodies/job-1.json"
	}), mock.Anything).Return(&s3.DeleteObjectOutput{}, nil).Once()

	store := newS3(t, client)
	ref, err := store.Put(context.Background(), "job-1", body)
	require.NoError(t, err)
	assert.Equal(t, "bodies/job-1.json", ref)

	got, err := store.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	require.NoError(t, store.Delete(context.Background(), ref))
}

func TestS3_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist")})

		_, err := newS3(t, client).Get(context.Background(), "bodies/gone.json")
		assert.ErrorIs(t, err, bodystore.ErrNotFound)
	})

	t.Run("missing bucket", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("PutObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &types.NoSuchBucket{})

		_, err := newS3(t, client).Put(context.Background(), "job", []byte(`{}`))
		assert.ErrorIs(t, err, bodystore.ErrBucketNotFound)
	})

	t.Run("access denied", func(t *testing.T) {
		t.Parallel()

		client := new(MockS3Client)
		client.On("DeleteObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"})

		err := newS3(t, client).Delete(context.Background(), "bodies/job.json")
		assert.ErrorIs(t, err, bodystore.ErrAccessDenied)
	})

	t.Run("other failures are wrapped", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("network down")
		client := new(MockS3Client)
		client.On("PutObject", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

		_, err := newS3(t, client).Put(context.Background(), "job", []byte(`{}`))
		assert.ErrorIs(t, err, boom)
	})
}
