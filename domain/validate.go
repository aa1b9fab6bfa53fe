package domain

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateSignIn checks sign-in input before any remote call.
func ValidateSignIn(email, password string) error {
	return invalid(validation.Errors{
		"email":    validation.Validate(NormalizeEmail(email), validation.Required, is.Email),
		"password": validation.Validate(password, validation.Required),
	}.Filter())
}

// ValidateSignUp checks sign-up input, including the password policy.
func ValidateSignUp(email, password, displayName string) error {
	return invalid(validation.Errors{
		"email":        validation.Validate(NormalizeEmail(email), validation.Required, is.Email),
		"password":     validation.Validate(password, validation.Required, validation.RuneLength(8, 128)),
		"display_name": validation.Validate(strings.TrimSpace(displayName), validation.Required, validation.RuneLength(1, 100)),
	}.Filter())
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return NewError(ErrCodeInvalid, err.Error())
}
