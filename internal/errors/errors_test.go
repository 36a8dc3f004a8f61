package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCarriesCodeAndCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := StoreError("persist item", cause)

	assert.Equal(t, "[ERR_STORE] persist item", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
}

func TestIsMatchesByCode(t *testing.T) {
	err := DecodeError("/a.jpg", nil)
	assert.ErrorIs(t, err, &LumeoError{Code: CodeDecode})
	assert.NotErrorIs(t, err, &LumeoError{Code: CodeStage})
}

func TestDecodeFailuresAreNotRetryable(t *testing.T) {
	assert.False(t, DecodeError("/a.jpg", nil).Retryable)
	assert.True(t, StageError("ocr", nil).Retryable)
	assert.True(t, Timeout("caption", nil).Retryable)
	assert.True(t, ModelUnavailable("caption", nil).Retryable)
}

func TestCodeOfWalksWrappedChains(t *testing.T) {
	inner := StageError("labels", stderrors.New("boom"))
	wrapped := fmt.Errorf("processing item 7: %w", inner)

	assert.Equal(t, CodeStage, CodeOf(wrapped))
	assert.Equal(t, "", CodeOf(stderrors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}
