package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"no such bucket", apiError(CodeNoSuchBucket), KindPermanent},
		{"access denied", apiError(CodeAccessDenied), KindPermanent},
		{"bad key id", apiError(CodeInvalidAccessKeyID), KindPermanent},
		{"signature", apiError(CodeSignatureDoesNotMatch), KindPermanent},
		{"wrapped access denied", fmt.Errorf("put: %w", apiError(CodeAccessDenied)), KindPermanent},
		{"head not found", &types.NotFound{}, KindNotFound},
		{"get no such key", &types.NoSuchKey{}, KindNotFound},
		{"404 status", statusError(404), KindNotFound},
		{"403 status", statusError(403), KindPermanent},
		{"500 status", statusError(500), KindTransient},
		{"503 status", statusError(503), KindTransient},
		{"throttled", apiError("SlowDown"), KindTransient},
		{"network", errors.New("connection reset by peer"), KindTransient},
		{"canceled", context.Canceled, KindPermanent},
		{"validation", fmt.Errorf("%w: empty", ErrInvalidImage), KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, ClassifyError(tt.err))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&types.NotFound{}))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(apiError(CodeAccessDenied)))
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err      error
		contains string
	}{
		{apiError(CodeNoSuchBucket), "bucket does not exist"},
		{apiError(CodeAccessDenied), "Access denied"},
		{apiError(CodeInvalidAccessKeyID), "Invalid storage credentials"},
		{apiError(CodeSignatureDoesNotMatch), "signature mismatch"},
		{statusError(403), "Forbidden"},
		{statusError(404), "not found"},
		{statusError(502), "server error"},
		{errors.New("dial tcp: timeout"), "Storage request failed: dial tcp: timeout"},
	}

	for _, tt := range tests {
		assert.Contains(t, UserMessage(tt.err), tt.contains)
	}
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "permanent", KindPermanent.String())
	assert.Equal(t, "not_found", KindNotFound.String())
}
