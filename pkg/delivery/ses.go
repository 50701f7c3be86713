package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

// SESClient is the subset of the SES v2 API used by SES.
type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	CreateEmailIdentity(ctx context.Context, params *sesv2.CreateEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.CreateEmailIdentityOutput, error)
	GetEmailIdentity(ctx context.Context, params *sesv2.GetEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.GetEmailIdentityOutput, error)
	DeleteEmailIdentity(ctx context.Context, params *sesv2.DeleteEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.DeleteEmailIdentityOutput, error)
}

type SESConfig struct {
	Region           string `env:"AWS_REGION" envDefault:"us-east-1"`
	AccessKeyID      string `env:"AWS_ACCESS_KEY_ID"`
	SecretKey        string `env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint         string `env:"SES_ENDPOINT"`
	ConfigurationSet string `env:"SES_CONFIGURATION_SET"`
}

type SESOption func(*sesOptions)

type sesOptions struct {
	client SESClient
}

// WithSESClient injects a pre-built client, mostly for tests.
func WithSESClient(c SESClient) SESOption {
	return func(o *sesOptions) { o.client = c }
}

// SES sends through Amazon SES and manages sender identities there.
type SES struct {
	client    SESClient
	configSet string
}

func NewSES(ctx context.Context, cfg SESConfig, opts ...SESOption) (*SES, error) {
	o := &sesOptions{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		if cfg.Region == "" {
			return nil, fmt.Errorf("%w: AWS region is required", ErrInvalidConfig)
		}
		loaders := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loaders = append(loaders, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, loaders...)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadConfig, err)
		}
		client = sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})
	}

	return &SES{client: client, configSet: cfg.ConfigurationSet}, nil
}

func (s *SES) Kind() Kind { return KindSES }

func (s *SES) Send(ctx context.Context, sender string, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := contextError(ctx.Err()); err != nil {
		return "", err
	}

	body := &types.Body{}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if s.configSet != "" {
		in.ConfigurationSetName = aws.String(s.configSet)
	}
	if msg.Tag != "" {
		in.EmailTags = []types.MessageTag{{Name: aws.String("campaign"), Value: aws.String(msg.Tag)}}
	}

	out, err := s.client.SendEmail(ctx, in)
	if err != nil {
		return "", classifySESError(err)
	}
	return aws.ToString(out.MessageId), nil
}

// VerifyIdentity registers email with SES, which mails the owner a confirmation link.
// Registering an existing identity is not an error.
func (s *SES) VerifyIdentity(ctx context.Context, email string) error {
	_, err := s.client.CreateEmailIdentity(ctx, &sesv2.CreateEmailIdentityInput{
		EmailIdentity: aws.String(email),
	})
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AlreadyExistsException" {
		return nil
	}
	if err != nil {
		return classifySESError(err)
	}
	return nil
}

// IdentityVerified reports whether SES allows sending from email.
func (s *SES) IdentityVerified(ctx context.Context, email string) (bool, error) {
	out, err := s.client.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
		EmailIdentity: aws.String(email),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFoundException" {
			return false, ErrIdentityNotFound
		}
		return false, classifySESError(err)
	}
	return out.VerifiedForSendingStatus, nil
}

// DeleteIdentity removes email from SES. A missing identity is not an error.
func (s *SES) DeleteIdentity(ctx context.Context, email string) error {
	_, err := s.client.DeleteEmailIdentity(ctx, &sesv2.DeleteEmailIdentityInput{
		EmailIdentity: aws.String(email),
	})
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFoundException" {
		return nil
	}
	if err != nil {
		return classifySESError(err)
	}
	return nil
}

func classifySESError(err error) error {
	if ce := contextError(err); ce != nil {
		return ce
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return &Error{Code: CodeUnknown, Err: err}
	}

	e := &Error{Message: apiErr.ErrorMessage(), Err: err}
	switch apiErr.ErrorCode() {
	case "MessageRejected":
		e.Code = CodeRejected
	case "MailFromDomainNotVerifiedException", "NotFoundException":
		e.Code = CodeSenderNotVerified
	case "TooManyRequestsException", "LimitExceededException", "Throttling", "ThrottlingException":
		e.Code = CodeThrottled
		e.Temporary = true
	case "AccountSuspendedException", "SendingPausedException", "AccessDeniedException":
		e.Code = CodeAuthFailed
	case "BadRequestException":
		e.Code = CodeInvalidMessage
	case "ServiceUnavailable", "InternalFailure":
		e.Code = CodeUnavailable
		e.Temporary = true
	default:
		e.Code = CodeUnknown
	}
	if e.Message == "" {
		e.Message = apiErr.ErrorCode()
	}
	return e
}
