package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsInnerCode(t *testing.T) {
	inner := ConfigInvalid("NSIMS must be >= 1")
	wrapped := Wrap(inner, "failed to load sweep configuration")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.True(t, stderrors.Is(wrapped, inner))
	assert.Contains(t, wrapped.Error(), "NSIMS must be >= 1")
}

func TestWrapPlainErrorIsInternal(t *testing.T) {
	base := fmt.Errorf("disk full")
	wrapped := Wrapf(base, "writing %s", "power.csv")

	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.Equal(t, "writing power.csv: disk full", wrapped.Error())
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestGetCodeUnknown(t *testing.T) {
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
	assert.Equal(t, CodeStorageError, GetCode(WithCode(CodeStorageError, fmt.Errorf("x"))))
}
