package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructorsCarryStatus(t *testing.T) {
	tests := []struct {
		err    *APIError
		status int
		code   ErrorCode
	}{
		{NotFound("community"), http.StatusNotFound, ErrNotFound},
		{NotOnline(), http.StatusNotFound, ErrNotOnline},
		{Unauthorized("no token"), http.StatusUnauthorized, ErrUnauthorized},
		{Forbidden("blocked"), http.StatusForbidden, ErrForbidden},
		{ValidationError("to", "required"), http.StatusUnprocessableEntity, ErrValidation},
		{BadRequest("bad"), http.StatusBadRequest, ErrBadRequest},
		{InternalError("boom"), http.StatusInternalServerError, ErrInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.Status, string(tt.code))
		assert.Equal(t, tt.code, tt.err.Code)
	}
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "USER_NOT_ONLINE: user not online", NotOnline().Error())
	assert.Equal(t, "VALIDATION_ERROR: required (field: to)", ValidationError("to", "required").Error())
	assert.Equal(t, "community not found", NotFound("community").Message)
}

func TestUnknownCodeStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("NOPE").StatusCode())
}
