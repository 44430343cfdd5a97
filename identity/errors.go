package identity

import (
	"errors"
	"fmt"
)

// Code is a provider error code.
type Code string

const (
	CodeUserNotFound       Code = "auth/user-not-found"
	CodeWrongPassword      Code = "auth/wrong-password"
	CodeEmailInUse         Code = "auth/email-already-in-use"
	CodeWeakPassword       Code = "auth/weak-password"
	CodeInvalidEmail       Code = "auth/invalid-email"
	CodeTooManyRequests    Code = "auth/too-many-requests"
	CodeNetworkRequest     Code = "auth/network-request-failed"
	CodeInternal           Code = "auth/internal-error"
	CodeInvalidCredentials Code = "auth/invalid-credential"
)

// Op names the user action an error belongs to.
type Op string

const (
	OpSignIn  Op = "sign_in"
	OpSignUp  Op = "sign_up"
	OpSignOut Op = "sign_out"
	OpStream  Op = "stream"
)

const (
	MessageMissingInput = "Email and password are required."
	MessageSignInFailed = "Failed to sign in. Please try again."
	MessageSignUpFailed = "Failed to create account. Please try again."
	MessageGeneric      = "Something went wrong. Please try again."
)

var messages = map[Code]string{
	CodeUserNotFound:    "No account found with this email address.",
	CodeWrongPassword:   "Incorrect password. Please try again.",
	CodeEmailInUse:      "An account with this email already exists.",
	CodeWeakPassword:    "Password should be at least 6 characters.",
	CodeInvalidEmail:    "Please enter a valid email address.",
	CodeTooManyRequests: "Too many failed attempts. Please try again later.",
	CodeNetworkRequest:  "Network error. Please check your connection.",
}

var (
	// ErrMissingInput is returned when email or password is empty after trimming.
	ErrMissingInput = errors.New("identity: email and password are required")
	// ErrNotSupported is returned when the provider cannot authenticate.
	ErrNotSupported = errors.New("identity: provider does not accept credentials")
)

// ProviderError is a coded failure reported by a provider.
type ProviderError struct {
	Code Code
	Err  error
}

// NewProviderError returns a ProviderError for code.
func NewProviderError(code Code) *ProviderError {
	return &ProviderError{Code: code}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity: %s: %v", e.Code, e.Err)
	}
	return "identity: " + string(e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is matches another *ProviderError with the same code.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	return ok && t.Code == e.Code
}

// FriendlyMessage maps err to the text shown to the user for op. Unknown codes and
// uncoded errors fall back to the generic message for op.
func FriendlyMessage(err error, op Op) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrMissingInput) {
		return MessageMissingInput
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if msg, ok := messages[pe.Code]; ok {
			return msg
		}
	}
	switch op {
	case OpSignIn:
		return MessageSignInFailed
	case OpSignUp:
		return MessageSignUpFailed
	default:
		return MessageGeneric
	}
}

// FriendlyError carries the user-facing message alongside the cause.
type FriendlyError struct {
	Op      Op
	Code    Code
	Message string
	Err     error
}

// Friendly wraps err as a *FriendlyError for op. A nil err yields nil.
func Friendly(err error, op Op) error {
	if err == nil {
		return nil
	}
	fe := &FriendlyError{Op: op, Message: FriendlyMessage(err, op), Err: err}
	var pe *ProviderError
	if errors.As(err, &pe) {
		fe.Code = pe.Code
	}
	return fe
}

func (e *FriendlyError) Error() string { return e.Message }

func (e *FriendlyError) Unwrap() error { return e.Err }
