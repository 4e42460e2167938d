package errors

import (
	"errors"
	"fmt"
	"time"
)

// Common error types for the gateway
var (
	// Authentication errors
	ErrAuthThrottled = errors.New("auth rate limited")
	ErrAuthCooldown  = errors.New("too many auth attempts")
	ErrAuthFailed    = errors.New("auth failed")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrNoCredentials = errors.New("upstream credentials not configured")

	// Upstream errors
	ErrUpstreamRateLimited = errors.New("upstream rate limited")
	ErrUpstream            = errors.New("upstream error")
	ErrNetwork             = errors.New("network error")

	// Inbound errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")
)

// AuthWaitError is returned when authentication is refused until RetryAfter
// has elapsed. It unwraps to ErrAuthThrottled or ErrAuthCooldown.
type AuthWaitError struct {
	Kind       error
	RetryAfter time.Duration
}

func (e *AuthWaitError) Error() string {
	if e.Kind == ErrAuthCooldown {
		minutes := int((e.RetryAfter + time.Minute - 1) / time.Minute)
		return fmt.Sprintf("Too many auth attempts. Please wait %d more minutes before trying again.", minutes)
	}
	seconds := int((e.RetryAfter + time.Second - 1) / time.Second)
	return fmt.Sprintf("Auth rate limited. Please wait %d more seconds before authenticating again.", seconds)
}

func (e *AuthWaitError) Unwrap() error {
	return e.Kind
}

// UpstreamError describes a non-2xx upstream answer that is not a rate limit.
type UpstreamError struct {
	Status  int
	Code    int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned %d", e.Status)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// IsThrottling reports whether err originates from auth throttling, auth
// cooldown or rate limiting, i.e. the caller should back off and retry later.
func IsThrottling(err error) bool {
	return errors.Is(err, ErrAuthThrottled) ||
		errors.Is(err, ErrAuthCooldown) ||
		errors.Is(err, ErrUpstreamRateLimited)
}

// RetryAfter returns the wait carried by an AuthWaitError in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var waitErr *AuthWaitError
	if errors.As(err, &waitErr) {
		return waitErr.RetryAfter, true
	}
	return 0, false
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
