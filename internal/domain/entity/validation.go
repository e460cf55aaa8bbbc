package entity

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

// maxPhoneDigits is the E.164 upper bound.
const maxPhoneDigits = 15

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// NormalizePhoneNumber strips formatting characters ("(", ")", "-", ".", spaces).
func NormalizePhoneNumber(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

// ValidatePhoneNumber checks that raw looks like an international phone number.
func ValidatePhoneNumber(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: "phone", Message: "phone number is required"}
	}
	n := NormalizePhoneNumber(raw)
	if !phonePattern.MatchString(n) {
		return &ValidationError{
			Field:   "phone",
			Message: fmt.Sprintf("must be 6-%d digits with an optional leading +", maxPhoneDigits),
		}
	}
	return nil
}

// ValidateEmail checks that addr is a single bare mail address.
func ValidateEmail(addr string) error {
	if addr == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return &ValidationError{Field: "email", Message: "invalid email address"}
	}
	return nil
}

// ValidatePriority checks the queue priority range.
func ValidatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return &ValidationError{
			Field:   "priority",
			Message: fmt.Sprintf("must be between %d and %d", MinPriority, MaxPriority),
		}
	}
	return nil
}
