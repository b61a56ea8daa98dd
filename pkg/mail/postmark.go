package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"
)

// PostmarkClient is the subset of *postmark.Client the sender uses.
type PostmarkClient interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Postmark API error codes that reject a message for good.
const (
	postmarkInvalidRequest    int64 = 300
	postmarkInactiveRecipient int64 = 406
)

// PostmarkSender delivers email through Postmark's transactional API.
type PostmarkSender struct {
	client PostmarkClient
}

// PostmarkOption configures a PostmarkSender.
type PostmarkOption func(*PostmarkSender)

// WithPostmarkClient replaces the API client, mainly for tests.
func WithPostmarkClient(c PostmarkClient) PostmarkOption {
	return func(s *PostmarkSender) {
		if c != nil {
			s.client = c
		}
	}
}

// NewPostmarkSender creates a Postmark-backed sender. Both tokens are
// required unless a client is injected.
func NewPostmarkSender(cfg Config, opts ...PostmarkOption) (*PostmarkSender, error) {
	s := &PostmarkSender{}
	for _, opt := range opts {
		opt(s)
	}
	if s.client != nil {
		return s, nil
	}

	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.PostmarkAccountToken == "" {
		return nil, fmt.Errorf("%w: PostmarkAccountToken is required", ErrInvalidConfig)
	}
	s.client = postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	return s, nil
}

// Send implements Sender. Transport failures and unexpected API errors are
// transient; invalid requests and inactive recipients are rejections.
// Postmark accepts one tag per message, so only the first tag is sent.
func (s *PostmarkSender) Send(ctx context.Context, email Email) error {
	msg := postmark.Email{
		From:       email.From,
		To:         strings.Join(email.To, ","),
		Subject:    email.Subject,
		TextBody:   email.TextBody,
		HTMLBody:   email.HTMLBody,
		TrackOpens: email.HTMLBody != "",
	}
	if len(email.Tags) > 0 {
		msg.Tag = email.Tags[0]
	}

	resp, err := s.client.SendEmail(ctx, msg)
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, ErrTransient, err)
	}
	if resp.ErrorCode == 0 {
		return nil
	}

	apiErr := fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message)
	switch {
	case resp.ErrorCode == postmarkInactiveRecipient:
		return errors.Join(ErrRejected, ErrInvalidRecipient, apiErr)
	case resp.ErrorCode == postmarkInvalidRequest && strings.Contains(strings.ToLower(resp.Message), "'to' address"):
		return errors.Join(ErrRejected, ErrInvalidRecipient, apiErr)
	case resp.ErrorCode == postmarkInvalidRequest:
		return errors.Join(ErrRejected, apiErr)
	default:
		return errors.Join(ErrFailedToSendEmail, ErrTransient, apiErr)
	}
}
