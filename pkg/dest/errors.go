package dest

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrCredentialsExpired marks a failure caused by an expired session token.
// Workers surface it to the coordinator, which refreshes credentials once for
// the whole run; it never consumes an upload retry attempt.
var ErrCredentialsExpired = errors.New("destination credentials expired")

// NotFoundError indicates a bucket or key does not exist in the destination.
// It is distinct from transient errors: a missing key means "needs upload",
// not failure.
type NotFoundError struct {
	Kind string
	Name string
}

// Error implements the 'error' interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// isExpiredToken reports whether an AWS API error is in the
// authorization-expiry class.
func isExpiredToken(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.ErrorCode() {
	case "ExpiredToken", "ExpiredTokenException", "InvalidToken", "TokenRefreshRequired":
		return true
	}

	return false
}
