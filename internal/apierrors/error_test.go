package apierrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCapturesStack(t *testing.T) {
	err := New()
	require.NotNil(t, err)
	assert.Equal(t, 0, err.Code)
	assert.NotEmpty(t, err.Stack)
}

func TestBuilderChain(t *testing.T) {
	cause := errors.New("boom")
	err := New().WithCode(NoGPUAvailable).WithMessage("no gpu").WithError(cause)

	assert.Equal(t, NoGPUAvailable, err.Code)
	assert.Equal(t, "no gpu", err.Message)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestWithMessagef(t *testing.T) {
	err := New().WithMessagef("code=%d msg=%s", 5, "x")
	assert.Equal(t, "code=5 msg=x", err.Message)
}

func TestErrorString(t *testing.T) {
	err := New().WithCode(RequestParameterInvalid).WithMessage("bad field")
	assert.Contains(t, err.Error(), "bad field")
	assert.Contains(t, err.Error(), "4001")
}
