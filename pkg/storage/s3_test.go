package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kathanp/emailbot/pkg/storage"
)

type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func newS3(t *testing.T, c *MockS3Client) *storage.S3 {
	t.Helper()
	s, err := storage.NewS3(context.Background(), storage.S3Config{Bucket: "contacts", Region: "us-east-1"},
		storage.WithS3Client(c))
	require.NoError(t, err)
	return s
}

func TestS3Put(t *testing.T) {
	t.Parallel()

	c := &MockS3Client{}
	c.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "contacts" && *in.Key == "uploads/u/f/a.csv" &&
			*in.ContentType == "text/csv" && *in.ContentLength == 6
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	err := newS3(t, c).Put(context.Background(), "/uploads/u/f/a.csv", strings.NewReader("email\n"), 6, "text/csv")
	require.NoError(t, err)
	c.AssertExpectations(t)
}

func TestS3Get(t *testing.T) {
	t.Parallel()

	c := &MockS3Client{}
	c.On("GetObject", mock.Anything, mock.Anything).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("email\n"))}, nil).Once()
	c.On("GetObject", mock.Anything, mock.Anything).
		Return(nil, &types.NoSuchKey{}).Once()

	s := newS3(t, c)
	rc, err := s.Get(context.Background(), "k.csv")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "email\n", string(body))

	_, err = s.Get(context.Background(), "k.csv")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestS3Delete(t *testing.T) {
	t.Parallel()

	t.Run("existing object", func(t *testing.T) {
		t.Parallel()
		c := &MockS3Client{}
		c.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil).Once()
		c.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil).Once()

		require.NoError(t, newS3(t, c).Delete(context.Background(), "k.csv"))
		c.AssertExpectations(t)
	})

	t.Run("missing object", func(t *testing.T) {
		t.Parallel()
		c := &MockS3Client{}
		c.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{}).Once()

		err := newS3(t, c).Delete(context.Background(), "k.csv")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
		c.AssertNotCalled(t, "DeleteObject", mock.Anything, mock.Anything)
	})

	t.Run("access denied", func(t *testing.T) {
		t.Parallel()
		c := &MockS3Client{}
		c.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil).Once()
		c.On("DeleteObject", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}).Once()

		err := newS3(t, c).Delete(context.Background(), "k.csv")
		assert.ErrorIs(t, err, storage.ErrAccessDenied)
	})
}

func TestS3Exists(t *testing.T) {
	t.Parallel()

	c := &MockS3Client{}
	c.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil).Once()
	c.On("HeadObject", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "SlowDown"}).Once()

	s := newS3(t, c)
	assert.True(t, s.Exists(context.Background(), "k.csv"))
	assert.False(t, s.Exists(context.Background(), "k.csv"))
	assert.False(t, s.Exists(context.Background(), "../k.csv"))
}

func TestNewS3RequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := storage.NewS3(context.Background(), storage.S3Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
}
