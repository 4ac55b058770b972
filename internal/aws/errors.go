package aws

import (
	"errors"

	"github.com/aws/smithy-go"
)

var accessDeniedCodes = map[string]bool{
	"AccessDeniedException":       true,
	"AccessDenied":                true,
	"UnrecognizedClientException": true,
	"InvalidSignatureException":   true,
	"ResourceNotFoundException":   true,
}

// IsAccessDenied reports whether err is an AWS error whose remediation is a
// permissions or configuration fix rather than a retry. A missing table counts:
// the store is misconfigured, not empty.
func IsAccessDenied(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return accessDeniedCodes[ae.ErrorCode()]
	}
	return false
}

// ErrorCode returns the AWS error code carried by err, or "".
func ErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// String returns a pointer to s.
func String(s string) *string { return &s }

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }
