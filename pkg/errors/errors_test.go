package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error carries its status", InvalidArgument("limit must be positive"), http.StatusBadRequest},
		{"build helper", Build("duplicate anchor %q", "#mouse"), http.StatusUnprocessableEntity},
		{"wrapped sentinel", fmt.Errorf("loading: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("decode: %w", Corrupt("posting references document %d", 7))
	assert.True(t, errors.Is(err, ErrCorruptIndex))
	assert.False(t, errors.Is(err, ErrBuild))
	assert.Equal(t, "decode: corrupt index: posting references document 7", err.Error())
}
