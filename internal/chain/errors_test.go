package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", notFound("update", "", "no action at address"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestChainTooDeepIsStorageFailure(t *testing.T) {
	err := &Error{Code: CodeChainTooDeep, Op: "resolve"}
	assert.ErrorIs(t, err, ErrChainTooDeep)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.NotErrorIs(t, ErrStorageFailure, ErrChainTooDeep)
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := storageFailure("create", "", cause)
	assert.Equal(t, "create: STORAGE_FAILURE: disk full", err.Error())
	assert.ErrorIs(t, err, cause)

	err = validation("update", "0123456789abcdef", "bad kind")
	assert.Equal(t, "update: VALIDATION: bad kind (address=0123456789ab)", err.Error())
}
