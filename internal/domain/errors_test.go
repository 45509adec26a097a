package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors_MatchSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", NewValidationError("nickname", "is required"), ErrValidation},
		{"conflict", &ConflictError{Entity: "user", Field: "nickname", Value: "mmarvin"}, ErrConflict},
		{"not found", &NotFoundError{Entity: "user", Key: "nickname", Value: "ghost"}, ErrNotFound},
		{"unavailable", &StorageUnavailableError{Op: "find user", Err: errors.New("dial tcp: refused")}, ErrStorageUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("service: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
			for _, other := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrStorageUnavailable} {
				if other != tc.sentinel {
					assert.NotErrorIs(t, wrapped, other)
				}
			}
		})
	}
}

func TestValidationError_MessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{
		"nickname": "is required",
		"login":    "is required",
	}}
	assert.Equal(t, "validation failed: login is required; nickname is required", err.Error())
}

func TestConflictError_UnwrapsCause(t *testing.T) {
	cause := errors.New("duplicate key value violates unique constraint")
	err := &ConflictError{Entity: "user", Field: "login", Value: "marvin", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `user login "marvin" already exists`, err.Error())
}

func TestNotFoundError_AsTyped(t *testing.T) {
	var nf *NotFoundError
	err := fmt.Errorf("lookup: %w", &NotFoundError{Entity: "user", Key: "id", Value: int64(42)})
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, int64(42), nf.Value)
	assert.Equal(t, "user with id 42 not found", nf.Error())
}
