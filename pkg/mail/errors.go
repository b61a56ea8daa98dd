package mail

import "errors"

var (
	ErrInvalidConfig     = errors.New("mail: invalid config")
	ErrInvalidMessage    = errors.New("mail: invalid message")
	ErrTemplate          = errors.New("mail: failed to render template")
	ErrFailedToSendEmail = errors.New("mail: failed to send email")
	ErrNotRegistered     = errors.New("mail: send_email task is not registered")

	// ErrTransient marks delivery failures worth retrying.
	ErrTransient = errors.New("mail: transient delivery failure")

	// ErrRejected marks messages the provider refused outright. Retrying them cannot succeed.
	ErrRejected = errors.New("mail: message rejected by provider")

	// ErrInvalidRecipient is a rejection caused by a bad recipient address.
	ErrInvalidRecipient = errors.New("mail: invalid recipient address")
)
