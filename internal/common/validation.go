package common

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

const (
	MinNameLength = 2
	MaxNameLength = 50
)

// ValidateName checks the display name length in characters, not bytes.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < MinNameLength {
		return errors.New("Name must be at least 2 characters")
	}
	if n > MaxNameLength {
		return errors.New("Name must be less than 50 characters")
	}
	return nil
}

// ValidateEmail accepts an empty address, anything else must look like one.
func ValidateEmail(email string) error {
	if email == "" {
		return nil
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return errors.New("Please enter a valid email address")
	}

	return nil
}

// HasPromptName is the anonymous name check used before likes and comments:
// the trimmed name must have at least two characters.
func HasPromptName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= MinNameLength
}
