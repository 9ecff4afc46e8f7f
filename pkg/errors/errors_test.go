package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsKind(t *testing.T) {
	err := Clone(ErrInvalidState, "time entry already closed")
	require.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "time entry already closed", err.Message)
	assert.Equal(t, http.StatusConflict, err.Status)
}

func TestFromErrorWrapsUntyped(t *testing.T) {
	raw := fmt.Errorf("boom")
	appErr := FromError(raw)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, errors.Is(appErr, raw))
}

func TestCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", Clonef(ErrBusy, "order %s locked", "OS-1"))
	assert.Equal(t, "BUSY", Code(err))
	assert.Equal(t, "", Code(fmt.Errorf("plain")))
}
