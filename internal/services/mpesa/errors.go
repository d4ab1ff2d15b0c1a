package mpesa

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ConfigurationError means the gateway cannot be built from the supplied
// credentials. No provider call is ever attempted with such credentials.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return "mpesa: missing configuration: " + strings.Join(e.Missing, ", ")
	}
	return "mpesa: invalid configuration: " + e.Reason
}

// ValidationError is returned for caller input that is rejected before any
// network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mpesa: invalid %s: %s", e.Field, e.Reason)
}

// AuthError is returned when the provider refuses to issue or honour an
// access token.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mpesa: authentication failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("mpesa: authentication failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ProviderError covers transport failures, timeouts and responses that
// could not be interpreted.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mpesa: %s", e.Op)
	if e.Timeout {
		b.WriteString(": timeout")
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same call later may succeed.
// Initiates should not be retried blindly even when this is true.
func (e *ProviderError) Temporary() bool {
	return e.Timeout || e.StatusCode == 0 || e.StatusCode >= 500
}

func transportError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
