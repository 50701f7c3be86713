package campaign

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kathanp/emailbot/pkg/templatevars"
)

var (
	ErrTemplateNotFound = errors.New("campaign: template not found")
	ErrFileNotFound     = errors.New("campaign: contact file not found")
	ErrSenderNotFound   = errors.New("campaign: sender not found")
	ErrSenderNotReady   = errors.New("campaign: sender is not verified")
	ErrCampaignNotFound = errors.New("campaign: campaign not found")
	ErrUserNotFound     = errors.New("campaign: user not found")
	ErrNoRecipients     = errors.New("campaign: contact file has no email addresses")
	ErrValidationFailed = errors.New("campaign: template variables missing from contact file")
	ErrSetupFailed      = errors.New("campaign: could not start dispatch")
)

// ValidationError lists placeholders the contact file cannot fill. Nothing is sent.
type ValidationError struct {
	Result templatevars.Result
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("template uses variables missing from the contact file: %s (available: %s)",
		strings.Join(e.Result.Missing, ", "), strings.Join(e.Result.Available, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
