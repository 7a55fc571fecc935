package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", NewValidation("empty lines"), KindValidation},
		{"not found", NewNotFound("article", "a1"), KindNotFound},
		{"precondition", NewPrecondition("not dispersed"), KindPrecondition},
		{"transition", NewInvalidTransition("request", "entregado", "cancelado"), KindPrecondition},
		{"forbidden", NewForbidden("role"), KindAuthorization},
		{"conflict", NewConcurrentModification("requisition", "r1"), KindConflict},
		{"wrapped", fmt.Errorf("create: %w", NewNotFound("order", "o1")), KindNotFound},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHelpers(t *testing.T) {
	err := fmt.Errorf("annul: %w", NewPrecondition("requisition already completed").WithDetail("number", "SC-010126-0900-01"))

	assert.True(t, IsPrecondition(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(err))

	appErr, ok := AsAppError(err)
	assert.True(t, ok)
	assert.Equal(t, "SC-010126-0900-01", appErr.Details["number"])
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("x")))
}

func TestWithCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewInternal(nil).WithCause(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}
