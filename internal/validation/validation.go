// Package validation provides input validation for user-supplied fields.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrPasswordTooShort indicates the password is below the minimum length.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// ErrPasswordTooWeak indicates the password lacks required character
	// variety.
	ErrPasswordTooWeak = errors.New("password must mix upper and lower case letters and digits")
	// ErrPasswordCommon indicates the password is on the common-password list.
	ErrPasswordCommon = errors.New("password is too common, choose a stronger one")
	// ErrInputTooLong indicates the input exceeds its maximum length.
	ErrInputTooLong = errors.New("input exceeds maximum length")
	// ErrInputInvalid indicates the input contains disallowed characters.
	ErrInputInvalid = errors.New("input contains invalid characters")
)

// Passwords trivially guessed by credential stuffing lists.
var commonPasswords = map[string]bool{
	"password":    true,
	"password1":   true,
	"password123": true,
	"passw0rd":    true,
	"12345678":    true,
	"123456789":   true,
	"qwerty123":   true,
	"letmein1":    true,
	"welcome1":    true,
	"iloveyou":    true,
	"changeme":    true,
	"admin123":    true,
}

// ValidatePassword enforces the account password policy: at least 8
// characters mixing upper case, lower case, and digits, and not on the
// common-password list.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrPasswordTooShort
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return ErrPasswordTooWeak
	}

	if commonPasswords[strings.ToLower(password)] {
		return ErrPasswordCommon
	}
	return nil
}

var validUsername = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateUsername enforces username rules: 3 to 50 characters, starting
// with a letter, containing only letters, digits, and underscores.
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return errors.New("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return ErrInputTooLong
	}
	if !validUsername.MatchString(username) {
		return ErrInputInvalid
	}
	return nil
}

var validAppName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\s\-_.]*$`)

// ValidateApplicationName checks an admin-supplied application name.
func ValidateApplicationName(name string) error {
	if name == "" || len(name) > 100 {
		return ErrInputTooLong
	}
	if !validAppName.MatchString(name) {
		return ErrInputInvalid
	}
	return nil
}

// ValidateDescription checks an admin-supplied description field.
func ValidateDescription(desc string) error {
	if len(desc) > 2000 {
		return ErrInputTooLong
	}
	if strings.ContainsRune(desc, 0) {
		return ErrInputInvalid
	}
	return nil
}
