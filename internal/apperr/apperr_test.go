package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("workflow", "wf-1")))
	assert.Equal(t, CodeValidation, CodeOf(InvalidInput("amount", "must be positive")))
	assert.Equal(t, CodeConflict, CodeOf(Conflict("already resolved")))
	assert.Equal(t, CodeForbidden, CodeOf(Forbidden("not your step")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("connection refused")))
}

func TestCodeOfWrappedError(t *testing.T) {
	inner := NotFound("workflow", "wf-1")
	wrapped := fmt.Errorf("selecting workflow: %w", inner)
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("no rows in result set")
	err := Wrap(cause, CodeNotFound, "workflow not found")
	assert.ErrorIs(t, err, cause)
}

func TestMessageOfHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "internal server error", MessageOf(errors.New("dial tcp: connection refused")))
	assert.Equal(t, "internal server error", MessageOf(Wrap(errors.New("oops"), CodeInternal, "pool exhausted")))
	assert.Equal(t, `workflow "wf-1" not found`, MessageOf(NotFound("workflow", "wf-1")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput("action", "unsupported")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(New(CodeBadRequest, "no approvers")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("instance", "inst-1")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(Forbidden("not your step")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Conflict("already resolved")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
