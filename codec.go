package authflow

import (
	"encoding/base64"
	"fmt"
)

// Tokens travel inside URLs, so the codec uses the unpadded URL-safe
// base64 alphabet. Padding characters and characters outside the alphabet
// are malformed input.
var tokenEncoding = base64.RawURLEncoding

// MalformedTokenError reports input that is not valid URL-safe encoded
// data. It is always reported to the caller and never retried.
type MalformedTokenError struct {
	cause error
}

func (e *MalformedTokenError) Error() string {
	return fmt.Sprintf("malformed token: %v", e.cause)
}

func (e *MalformedTokenError) Unwrap() error { return e.cause }

// EncodeToken encodes an opaque payload into a URL-safe string. Pure
// transform; never fails.
func EncodeToken(payload []byte) string {
	return tokenEncoding.EncodeToString(payload)
}

// DecodeToken decodes a URL-safe string produced by EncodeToken. Size is
// not checked here; callers bound payload size.
func DecodeToken(s string) ([]byte, error) {
	payload, err := tokenEncoding.DecodeString(s)
	if err != nil {
		return nil, &MalformedTokenError{cause: err}
	}
	return payload, nil
}
