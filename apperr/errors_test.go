package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := Conflict("Username or email already exists")
	wrapped := Wrap(base, "register failed")

	assert.Equal(t, CodeConflict, Code(wrapped))
	assert.True(t, Is(wrapped, CodeConflict))
	assert.True(t, errors.Is(wrapped, base))
}

func TestWrapPlainError(t *testing.T) {
	err := Wrap(errors.New("boom"), "failed")
	assert.Equal(t, CodeInternal, Code(err))
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestWrapf(t *testing.T) {
	err := Wrapf(Storage("Error saving prediction", errors.New("disk full")), "row %d", 3)
	assert.Equal(t, CodeStorage, Code(err))
	assert.Equal(t, "row 3", Message(err))
	assert.Nil(t, Wrapf(nil, "row %d", 1))
}

func TestCodeThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", Auth("Invalid username or password"))
	assert.Equal(t, CodeAuth, Code(err))
	assert.Equal(t, "Invalid username or password", Message(err))
}

func TestToResult(t *testing.T) {
	ok := ToResult(nil, "Registration successful")
	assert.Equal(t, Result{Success: true, Message: "Registration successful"}, ok)

	failed := ToResult(Validation("Invalid email format"), "unused")
	assert.False(t, failed.Success)
	assert.Equal(t, "Invalid email format", failed.Message)

	storage := ToResult(Storage("Error saving prediction", errors.New("disk full")), "unused")
	assert.Equal(t, "Error saving prediction", storage.Message)
}
