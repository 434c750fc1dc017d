package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWithOperation(t *testing.T) {
	base := errors.New("disk full")
	err := ErrorWithOperation(base, "inserting request events")
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "inserting request events")

	err = ErrorWithOperation(nil, "inserting request events")
	assert.Error(t, err)
}

func TestIsNoResults(t *testing.T) {
	assert.True(t, IsNoResults(ErrNoResults))
	assert.True(t, IsNoResults(fmt.Errorf("wrapped: %w", ErrNoResults)))
	assert.False(t, IsNoResults(errors.New("something else")))
	assert.False(t, IsNoResults(nil))
}

func TestConnectionError(t *testing.T) {
	base := errors.New("refused")
	err := ConnectionError(base, "postgresql")
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "postgresql")
}
