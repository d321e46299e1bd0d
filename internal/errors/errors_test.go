package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormat(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		wantErr string
	}{
		{
			name:    "what only",
			err:     &AppError{What: "something broke"},
			wantErr: "something broke",
		},
		{
			name:    "what and why",
			err:     &AppError{What: "something broke", Why: "bad input"},
			wantErr: "something broke: bad input",
		},
		{
			name:    "with cause",
			err:     &AppError{What: "something broke", Cause: errors.New("underlying error")},
			wantErr: "something broke: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.err.Error())
		})
	}
}

func TestAppErrorJSON(t *testing.T) {
	err := Duplicate("user", "email", "a@b.c").WithCause(errors.New("raw"))

	data, marshalErr := json.Marshal(err)
	require.NoError(t, marshalErr)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "DUPLICATE", result["code"])
	assert.Equal(t, "email", result["field"])
	assert.Equal(t, "raw", result["cause"])
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("delete user: %w", BusinessRule("cannot delete user", "assigned tasks"))

	assert.True(t, errors.Is(wrapped, ErrBusinessRule))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, CodeBusinessRule, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestFromConstraint(t *testing.T) {
	tests := []struct {
		name      string
		in        error
		wantCode  Code
		wantField string
	}{
		{
			name:      "unique column",
			in:        errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"),
			wantCode:  CodeDuplicate,
			wantField: "email",
		},
		{
			name:     "composite unique",
			in:       errors.New("UNIQUE constraint failed: reactions.target_type, reactions.target_id"),
			wantCode: CodeDuplicate,
		},
		{
			name:     "foreign key",
			in:       errors.New("FOREIGN KEY constraint failed"),
			wantCode: CodeConstraint,
		},
		{
			name:     "other",
			in:       errors.New("near \"SELEC\": syntax error"),
			wantCode: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromConstraint(tt.in)
			assert.Equal(t, tt.wantCode, CodeOf(got))
			if tt.wantField != "" {
				ae, ok := As(got)
				require.True(t, ok)
				assert.Equal(t, tt.wantField, ae.Field)
			}
			assert.ErrorIs(t, got, tt.in)
		})
	}
}

func TestCategory(t *testing.T) {
	assert.Equal(t, CategoryNotFound, NotFound("task", "x").Category())
	assert.Equal(t, CategoryConflict, Duplicate("tag", "name", "x").Category())
	assert.Equal(t, CategoryInternal, SetupFailed(errors.New("x")).Category())
	assert.Equal(t, CategoryUnknown, (&AppError{Code: "NOPE"}).Category())
}
