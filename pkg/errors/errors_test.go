package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	err := Clone(ErrConflict, "course name already exists")
	got := FromError(err)
	assert.Equal(t, "CONFLICT", got.Code)
	assert.Equal(t, http.StatusConflict, got.Status)
	assert.Equal(t, "course name already exists", got.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	got := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.True(t, errors.Is(got, sql.ErrConnDone))
}

func TestCloneDoesNotMutateSentinel(t *testing.T) {
	_ = Clone(ErrNotFound, "student not found")
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", Clone(ErrNotFound, "course not found"))
	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(sql.ErrNoRows, ErrNotFound))
}

func TestValidationListsFields(t *testing.T) {
	type payload struct {
		Name  string  `validate:"required"`
		Fee   float64 `validate:"gte=0"`
		Email string  `validate:"omitempty,email"`
	}
	err := validator.New().Struct(payload{Fee: -1, Email: "nope"})
	require.Error(t, err)

	got := Validation(err, "invalid course payload")
	assert.Equal(t, ErrValidation.Code, got.Code)
	assert.Equal(t, http.StatusBadRequest, got.Status)
	assert.Equal(t, []FieldError{
		{Field: "Name", Rule: "required"},
		{Field: "Fee", Rule: "gte", Param: "0"},
		{Field: "Email", Rule: "email"},
	}, got.Fields)

	plain := Validation(errors.New("not json"), "bad body")
	assert.Empty(t, plain.Fields)
}
