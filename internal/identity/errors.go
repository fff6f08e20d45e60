package identity

import "errors"

// Error codes reported by the identity provider.
const (
	CodeInvalidCredential     = "invalid-credential"
	CodeEmailAlreadyInUse     = "email-already-in-use"
	CodeWeakPassword          = "weak-password"
	CodeInvalidEmail          = "invalid-email"
	CodeUserNotFound          = "user-not-found"
	CodeNetworkRequestFailed  = "network-request-failed"
	CodeSessionExpired        = "session-expired"
	CodeFederationUnavailable = "federation-unavailable"
	CodeInvalidResetToken     = "invalid-reset-token"
	CodeInternal              = "internal-error"
)

// AuthError is returned by every identity operation that fails. Message is
// meant to be shown to the user as is.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func authError(code, message string, cause error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: cause}
}

// IsCode reports whether err is an AuthError with the given code.
func IsCode(err error, code string) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Code == code
}
