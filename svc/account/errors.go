package account

import "errors"

var (
	ErrUserNotFound       = errors.New("account: user not found")
	ErrEmailTaken         = errors.New("account: email already registered")
	ErrInvalidEmail       = errors.New("account: invalid email address")
	ErrWeakPassword       = errors.New("account: password does not meet requirements")
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	ErrPasswordNotSet     = errors.New("account: account has no password, sign in with Google")

	ErrGoogleDisabled  = errors.New("account: google sign-in is not configured")
	ErrInvalidState    = errors.New("account: invalid oauth state")
	ErrInvalidCode     = errors.New("account: invalid oauth code")
	ErrUnverifiedEmail = errors.New("account: email not verified by google")
	ErrNoEmail         = errors.New("account: google returned no email")
)
