package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("Post"), http.StatusNotFound},
		{Forbidden("Access denied"), http.StatusForbidden},
		{Validation("title is required"), http.StatusBadRequest},
		{Conflict("username taken", nil), http.StatusConflict},
		{Unauthorized("missing token"), http.StatusUnauthorized},
		{Storage("list posts", errors.New("conn reset")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err).Status())
		})
	}
}

func TestPublicHidesCauses(t *testing.T) {
	err := fmt.Errorf("toggle: %w", Storage("toggle like", errors.New("dial tcp 10.0.0.1")))
	assert.Equal(t, "Internal server error", Public(err))
	assert.Equal(t, "Post not found", Public(fmt.Errorf("get: %w", NotFound("Post"))))
}

func TestIs(t *testing.T) {
	wrapped := fmt.Errorf("follow: %w", ErrSelfFollow)
	assert.ErrorIs(t, wrapped, ErrSelfFollow)
	assert.ErrorIs(t, wrapped, &Error{Kind: KindForbidden})
	assert.NotErrorIs(t, Forbidden("Access denied"), ErrSelfFollow)

	cause := errors.New("duplicate key")
	assert.ErrorIs(t, Conflict("exists", cause), cause)
}
