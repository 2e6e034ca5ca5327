// ABOUTME: Live email backend on Amazon SES v2 with DKIM domain verification.
// ABOUTME: Wraps a narrow client interface so tests can substitute a fake.

package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	smithyhttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// maxSubjectLen bounds the subject line derived from the message body.
const maxSubjectLen = 78

// SESAPI is the slice of the SES v2 client this backend uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	CreateEmailIdentity(ctx context.Context, params *sesv2.CreateEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.CreateEmailIdentityOutput, error)
	GetEmailIdentity(ctx context.Context, params *sesv2.GetEmailIdentityInput, optFns ...func(*sesv2.Options)) (*sesv2.GetEmailIdentityOutput, error)
}

var _ SESAPI = (*sesv2.Client)(nil)

// SES sends email through Amazon SES v2. It implements Messenger and
// DomainVerifier.
type SES struct {
	client SESAPI
	logger *slog.Logger
}

// NewSES creates the live email backend.
func NewSES(client SESAPI, logger *slog.Logger) *SES {
	return &SES{
		client: client,
		logger: logger.With("component", "ses"),
	}
}

// Send delivers a plain-text email. The first line of the body doubles as
// the subject. Media URLs are appended as links since SES v2's simple
// content takes no attachments.
func (s *SES) Send(ctx context.Context, from, to, body string, media []string) (*SendResult, error) {
	text := body
	if len(media) > 0 {
		text = text + "\n\n" + strings.Join(media, "\n")
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subjectLine(body))},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(text)},
				},
			},
		},
	})
	if err != nil {
		return nil, mapAWSError("sending email", err)
	}

	s.logger.Debug("sent email", "message_id", aws.ToString(out.MessageId))
	return &SendResult{
		MessageID: aws.ToString(out.MessageId),
		Status:    "sent",
	}, nil
}

// VerifyDomain registers a sending domain and returns the DKIM records the
// tenant must publish. Re-verifying an already registered domain is not an
// error; the existing DKIM state is fetched instead.
func (s *SES) VerifyDomain(ctx context.Context, domain string) (*DomainVerification, error) {
	var (
		tokens   []string
		verified bool
	)

	created, err := s.client.CreateEmailIdentity(ctx, &sesv2.CreateEmailIdentityInput{
		EmailIdentity: aws.String(domain),
	})
	switch {
	case err == nil:
		if created.DkimAttributes != nil {
			tokens = created.DkimAttributes.Tokens
		}
		verified = created.VerifiedForSendingStatus
	case isAlreadyExists(err):
		got, getErr := s.client.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
			EmailIdentity: aws.String(domain),
		})
		if getErr != nil {
			return nil, mapAWSError("fetching email identity", getErr)
		}
		if got.DkimAttributes != nil {
			tokens = got.DkimAttributes.Tokens
		}
		verified = got.VerifiedForSendingStatus
	default:
		return nil, mapAWSError("creating email identity", err)
	}

	status := "pending"
	if verified {
		status = "verified"
	}

	records := make([]DNSRecord, 0, len(tokens))
	for _, token := range tokens {
		records = append(records, DNSRecord{
			Type:  "CNAME",
			Name:  fmt.Sprintf("%s._domainkey.%s", token, domain),
			Value: fmt.Sprintf("%s.dkim.amazonses.com", token),
		})
	}

	s.logger.Debug("verified domain", "domain", domain, "status", status, "records", len(records))
	return &DomainVerification{
		Domain:  domain,
		Status:  status,
		Records: records,
	}, nil
}

// subjectLine derives an email subject from the first line of the body.
func subjectLine(body string) string {
	line := body
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		line = "(no subject)"
	}
	if len(line) > maxSubjectLen {
		line = line[:maxSubjectLen]
	}
	return line
}

func isAlreadyExists(err error) bool {
	var exists *types.AlreadyExistsException
	return errors.As(err, &exists)
}

// mapAWSError converts AWS SDK failures to *Error so the HTTP layer can
// classify them like any other upstream failure.
func mapAWSError(op string, err error) error {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return &Error{
			Status:  respErr.HTTPStatusCode(),
			Message: fmt.Sprintf("%s: %v", op, err),
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
