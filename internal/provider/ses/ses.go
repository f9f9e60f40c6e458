// Package ses implements a Provider that sends emails via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/smtp-send-lite/internal/compose"
	"github.com/shineum/smtp-send-lite/internal/email"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// SESProviderConfig holds the configuration for creating a SESProvider.
type SESProviderConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Signer, if set, DKIM-signs the raw message before submission.
	Signer *compose.Signer
}

// SESProvider sends emails via the AWS SES v2 API as raw MIME messages, so
// Reply-To, threading, priority and Content-Id headers survive intact.
type SESProvider struct {
	client     SendEmailAPI
	signer     *compose.Signer
	retryDelay time.Duration
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a new SESProvider with the given configuration.
func New(ctx context.Context, cfg SESProviderConfig) (*SESProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	p := NewWithClient(sesv2.NewFromConfig(awsCfg))
	p.signer = cfg.Signer
	return p, nil
}

// NewWithClient creates a SESProvider with a custom client, used for testing.
func NewWithClient(client SendEmailAPI) *SESProvider {
	return &SESProvider{
		client:     client,
		retryDelay: baseRetryDelay,
	}
}

// Send delivers an email message via AWS SES v2, retrying failed API calls
// with exponential backoff.
func (s *SESProvider) Send(ctx context.Context, msg *email.Message) (*email.Receipt, error) {
	input, envelope, msgID, err := s.buildInput(msg)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			delay := backoffDelay(s.retryDelay, attempt)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		out, err := s.client.SendEmail(ctx, input)
		if err == nil {
			return &email.Receipt{
				Provider:  s.Name(),
				MessageID: msgID,
				Envelope:  envelope,
				Accepted:  envelope.To,
				Response:  aws.ToString(out.MessageId),
			}, nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return nil, fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the provider name.
func (s *SESProvider) Name() string {
	return "ses"
}

// buildInput renders msg and wraps it in a raw SendEmailInput. Bcc recipients
// only appear in the destination.
func (s *SESProvider) buildInput(msg *email.Message) (*sesv2.SendEmailInput, email.Envelope, string, error) {
	sender, err := msg.SenderAddress()
	if err != nil {
		return nil, email.Envelope{}, "", err
	}

	to, err := email.Addresses(msg.To)
	if err != nil {
		return nil, email.Envelope{}, "", err
	}
	cc, err := email.Addresses(msg.Cc)
	if err != nil {
		return nil, email.Envelope{}, "", err
	}
	bcc, err := email.Addresses(msg.Bcc)
	if err != nil {
		return nil, email.Envelope{}, "", err
	}

	raw, msgID, err := compose.Build(msg, compose.Options{Signer: s.signer})
	if err != nil {
		return nil, email.Envelope{}, "", fmt.Errorf("failed to build raw message: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses:  to,
			CcAddresses:  cc,
			BccAddresses: bcc,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{
				Data: raw,
			},
		},
	}

	rcpts := make([]string, 0, len(to)+len(cc)+len(bcc))
	rcpts = append(rcpts, to...)
	rcpts = append(rcpts, cc...)
	rcpts = append(rcpts, bcc...)

	return input, email.Envelope{From: sender, To: rcpts}, msgID, nil
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
