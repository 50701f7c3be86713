package delivery_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kathanp/emailbot/pkg/delivery"
)

type MockSESClient struct {
	mock.Mock
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

func (m *MockSESClient) CreateEmailIdentity(ctx context.Context, params *sesv2.CreateEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.CreateEmailIdentityOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.CreateEmailIdentityOutput), args.Error(1)
}

func (m *MockSESClient) GetEmailIdentity(ctx context.Context, params *sesv2.GetEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.GetEmailIdentityOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.GetEmailIdentityOutput), args.Error(1)
}

func (m *MockSESClient) DeleteEmailIdentity(ctx context.Context, params *sesv2.DeleteEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.DeleteEmailIdentityOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.DeleteEmailIdentityOutput), args.Error(1)
}

func newSES(t *testing.T, client *MockSESClient) *delivery.SES {
	t.Helper()
	s, err := delivery.NewSES(context.Background(), delivery.SESConfig{ConfigurationSet: "tracking"}, delivery.WithSESClient(client))
	require.NoError(t, err)
	return s
}

func TestSESSend(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		client := &MockSESClient{}
		client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
			return aws.ToString(in.FromEmailAddress) == "team@acme.io" &&
				in.Destination.ToAddresses[0] == "ada@example.com" &&
				aws.ToString(in.Content.Simple.Subject.Data) == "Hello" &&
				aws.ToString(in.Content.Simple.Body.Html.Data) == "<p>Hi</p>" &&
				in.Content.Simple.Body.Text == nil &&
				aws.ToString(in.ConfigurationSetName) == "tracking"
		})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}, nil)

		id, err := newSES(t, client).Send(context.Background(), "team@acme.io", delivery.Message{
			To: "ada@example.com", Subject: "Hello", HTML: "<p>Hi</p>",
		})
		require.NoError(t, err)
		assert.Equal(t, "ses-123", id)
		client.AssertExpectations(t)
	})

	t.Run("rejected", func(t *testing.T) {
		t.Parallel()
		client := &MockSESClient{}
		client.On("SendEmail", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified."})

		_, err := newSES(t, client).Send(context.Background(), "team@acme.io", delivery.Message{
			To: "ada@example.com", Subject: "Hello", HTML: "<p>Hi</p>",
		})
		require.Error(t, err)
		assert.Equal(t, delivery.CodeRejected, delivery.CodeOf(err))
		assert.Equal(t, "Email address is not verified.", delivery.MessageOf(err))
	})

	t.Run("throttled is temporary", func(t *testing.T) {
		t.Parallel()
		client := &MockSESClient{}
		client.On("SendEmail", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "TooManyRequestsException"})

		_, err := newSES(t, client).Send(context.Background(), "team@acme.io", delivery.Message{
			To: "ada@example.com", Subject: "Hello", Text: "Hi",
		})
		var de *delivery.Error
		require.ErrorAs(t, err, &de)
		assert.Equal(t, delivery.CodeThrottled, de.Code)
		assert.True(t, de.Temporary)
	})

	t.Run("invalid recipient never reaches SES", func(t *testing.T) {
		t.Parallel()
		client := &MockSESClient{}
		_, err := newSES(t, client).Send(context.Background(), "team@acme.io", delivery.Message{
			To: "not-an-address", Subject: "Hello", HTML: "x",
		})
		assert.Equal(t, delivery.CodeInvalidRecipient, delivery.CodeOf(err))
		client.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
	})
}

func TestSESIdentities(t *testing.T) {
	t.Parallel()

	client := &MockSESClient{}
	client.On("CreateEmailIdentity", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "AlreadyExistsException"}).Once()
	client.On("GetEmailIdentity", mock.Anything, mock.MatchedBy(func(in *sesv2.GetEmailIdentityInput) bool {
		return aws.ToString(in.EmailIdentity) == "team@acme.io"
	})).Return(&sesv2.GetEmailIdentityOutput{VerifiedForSendingStatus: true}, nil).Once()
	client.On("GetEmailIdentity", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "NotFoundException"}).Once()
	client.On("DeleteEmailIdentity", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "NotFoundException"}).Once()

	s := newSES(t, client)
	ctx := context.Background()

	require.NoError(t, s.VerifyIdentity(ctx, "team@acme.io"))

	ok, err := s.IdentityVerified(ctx, "team@acme.io")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.IdentityVerified(ctx, "other@acme.io")
	assert.ErrorIs(t, err, delivery.ErrIdentityNotFound)

	require.NoError(t, s.DeleteIdentity(ctx, "gone@acme.io"))
	client.AssertExpectations(t)
}

func TestNewSESRequiresRegion(t *testing.T) {
	t.Parallel()
	_, err := delivery.NewSES(context.Background(), delivery.SESConfig{})
	assert.ErrorIs(t, err, delivery.ErrInvalidConfig)
}
