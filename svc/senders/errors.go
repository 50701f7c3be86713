package senders

import "errors"

var (
	ErrInvalidEmail        = errors.New("senders: invalid email address")
	ErrDuplicateSender     = errors.New("senders: sender already exists")
	ErrSenderNotFound      = errors.New("senders: sender not found")
	ErrNotVerified         = errors.New("senders: sender is not verified")
	ErrProviderUnavailable = errors.New("senders: provider is not configured")
	ErrGmailNotLinked      = errors.New("senders: no Google account linked")
	ErrGmailMismatch       = errors.New("senders: gmail sender must match the linked Google account")
	ErrVerificationFailed  = errors.New("senders: identity verification failed")
	ErrUserNotFound        = errors.New("senders: user not found")
)
