package auth

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/mudichurmart/storefront/internal/aws"
)

// Category is the user-facing class of an auth failure.
type Category string

const (
	InvalidCredentials Category = "invalid_credentials"
	RateLimited        Category = "rate_limited"
	Network            Category = "network"
	EmailInUse         Category = "email_in_use"
	WeakPassword       Category = "weak_password"
	Unauthenticated    Category = "unauthenticated"
	Unknown            Category = "unknown"
)

var categoryByCode = map[string]Category{
	"NotAuthorizedException":         InvalidCredentials,
	"UserNotFoundException":          InvalidCredentials,
	"UserNotConfirmedException":      InvalidCredentials,
	"PasswordResetRequiredException": InvalidCredentials,
	"TooManyRequestsException":       RateLimited,
	"TooManyFailedAttemptsException": RateLimited,
	"LimitExceededException":         RateLimited,
	"UsernameExistsException":        EmailInUse,
	"AliasExistsException":           EmailInUse,
	"InvalidPasswordException":       WeakPassword,
}

var messages = map[Category]string{
	InvalidCredentials: "Invalid email or password.",
	RateLimited:        "Too many attempts. Please try again later.",
	Network:            "Network error. Check your connection and try again.",
	EmailInUse:         "An account with this email already exists.",
	WeakPassword:       "Password does not meet the requirements.",
	Unauthenticated:    "Please sign in.",
	Unknown:            "Something went wrong. Please try again.",
}

// Error is an auth failure classified for display.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message is safe to show to the user.
func (e *Error) Message() string { return messages[e.Category] }

// Classify maps a provider error to a Category.
func Classify(err error) Category {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category
	}
	if c, ok := categoryByCode[aws.ErrorCode(err)]; ok {
		return c
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Network
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Network
	}
	return Unknown
}

func classified(op string, err error) error {
	return &Error{Category: Classify(err), Err: fmt.Errorf("%s: %w", op, err)}
}
