package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// ErrorKind tells the retry loop what to do with a failed storage call.
type ErrorKind int

const (
	// KindTransient errors may succeed on another attempt.
	KindTransient ErrorKind = iota
	// KindPermanent errors (bad bucket, bad credentials) will not.
	KindPermanent
	// KindNotFound means the object does not exist.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ErrInvalidImage wraps every local validation failure.
var ErrInvalidImage = errors.New("invalid image")

// Provider error codes with a fixed classification.
const (
	CodeNoSuchBucket          = "NoSuchBucket"
	CodeAccessDenied          = "AccessDenied"
	CodeInvalidAccessKeyID    = "InvalidAccessKeyId"
	CodeSignatureDoesNotMatch = "SignatureDoesNotMatch"
	CodeNoSuchKey             = "NoSuchKey"
	CodeNotFound              = "NotFound"
)

var codeKinds = map[string]ErrorKind{
	CodeNoSuchBucket:          KindPermanent,
	CodeAccessDenied:          KindPermanent,
	CodeInvalidAccessKeyID:    KindPermanent,
	CodeSignatureDoesNotMatch: KindPermanent,
	CodeNoSuchKey:             KindNotFound,
	CodeNotFound:              KindNotFound,
}

// errorCode returns the provider error code carried by err, if any.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// statusCode returns the HTTP status of the failed response, or 0.
func statusCode(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}

// ClassifyError maps a storage error to a kind. Unknown errors are transient.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindTransient
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrInvalidImage) {
		return KindPermanent
	}
	if kind, ok := codeKinds[errorCode(err)]; ok {
		return kind
	}
	switch status := statusCode(err); {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindPermanent
	}
	return KindTransient
}

// IsNotFound reports whether err means the object is absent.
func IsNotFound(err error) bool {
	return err != nil && ClassifyError(err) == KindNotFound
}

// UserMessage turns a storage error into text an admin can act on.
func UserMessage(err error) string {
	switch errorCode(err) {
	case CodeNoSuchBucket:
		return "Storage bucket does not exist. Check R2_BUCKET_NAME."
	case CodeAccessDenied:
		return "Access denied to the storage bucket. Check the API token permissions."
	case CodeInvalidAccessKeyID:
		return "Invalid storage credentials. Check R2_ACCESS_KEY_ID."
	case CodeSignatureDoesNotMatch:
		return "Storage signature mismatch. Check R2_SECRET_ACCESS_KEY."
	}

	switch status := statusCode(err); {
	case status == http.StatusForbidden:
		return "Forbidden: the storage credentials lack permission for this operation."
	case status == http.StatusNotFound:
		return "Storage endpoint or object not found."
	case status >= 500:
		return "Storage server error. Please try again later."
	}

	return fmt.Sprintf("Storage request failed: %v", err)
}
