package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Input length limits applied before a request leaves the process.
const (
	MaxNameLength    = 255
	MaxEmailLength   = 320 // RFC 5321: 64 local + @ + 255 domain
	MaxSubjectLength = 500
	MaxReplyLength   = 100000
)

// ValidateName checks a contact name length. Empty names are allowed.
func ValidateName(name string) error {
	if name == "" {
		return nil
	}
	if length := utf8.RuneCountInString(name); length > MaxNameLength {
		return fmt.Errorf("name exceeds maximum length of %d characters (got %d)", MaxNameLength, length)
	}
	return nil
}

// ValidateEmail checks an email address for length and basic RFC 5322
// shape. Empty emails are allowed.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}
	if length := utf8.RuneCountInString(email); length > MaxEmailLength {
		return fmt.Errorf("email exceeds maximum length of %d characters (got %d)", MaxEmailLength, length)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address %q", email)
	}
	return nil
}

// ValidateSubject checks a ticket subject is present and within limits.
func ValidateSubject(subject string) error {
	if strings.TrimSpace(subject) == "" {
		return fmt.Errorf("subject cannot be empty")
	}
	if length := utf8.RuneCountInString(subject); length > MaxSubjectLength {
		return fmt.Errorf("subject exceeds maximum length of %d characters (got %d)", MaxSubjectLength, length)
	}
	return nil
}

// ValidateReplyBody checks a reply body is present and within limits.
func ValidateReplyBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("reply body cannot be empty")
	}
	if length := utf8.RuneCountInString(body); length > MaxReplyLength {
		return fmt.Errorf("reply body exceeds maximum length of %d characters (got %d)", MaxReplyLength, length)
	}
	return nil
}
