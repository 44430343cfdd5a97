package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFriendlyMessageKnownCodes(t *testing.T) {
	cases := map[Code]string{
		CodeUserNotFound:    "No account found with this email address.",
		CodeWrongPassword:   "Incorrect password. Please try again.",
		CodeEmailInUse:      "An account with this email already exists.",
		CodeWeakPassword:    "Password should be at least 6 characters.",
		CodeInvalidEmail:    "Please enter a valid email address.",
		CodeTooManyRequests: "Too many failed attempts. Please try again later.",
		CodeNetworkRequest:  "Network error. Please check your connection.",
	}
	for code, want := range cases {
		wrapped := fmt.Errorf("call failed: %w", NewProviderError(code))
		assert.Equal(t, want, FriendlyMessage(wrapped, OpSignIn), string(code))
	}
}

func TestFriendlyMessageFallbacks(t *testing.T) {
	unknown := NewProviderError("auth/something-new")
	assert.Equal(t, MessageSignInFailed, FriendlyMessage(unknown, OpSignIn))
	assert.Equal(t, MessageSignUpFailed, FriendlyMessage(unknown, OpSignUp))
	assert.Equal(t, MessageGeneric, FriendlyMessage(errors.New("boom"), OpStream))
	assert.Equal(t, MessageMissingInput, FriendlyMessage(ErrMissingInput, OpSignUp))
	assert.Empty(t, FriendlyMessage(nil, OpSignIn))
}

func TestFriendlyErrorWrapsCause(t *testing.T) {
	cause := NewProviderError(CodeWrongPassword)
	err := Friendly(cause, OpSignIn)

	var fe *FriendlyError
	assert.ErrorAs(t, err, &fe)
	assert.Equal(t, CodeWrongPassword, fe.Code)
	assert.Equal(t, "Incorrect password. Please try again.", err.Error())
	assert.ErrorIs(t, err, NewProviderError(CodeWrongPassword))
	assert.NotErrorIs(t, err, NewProviderError(CodeUserNotFound))
	assert.NoError(t, Friendly(nil, OpSignIn))
}
