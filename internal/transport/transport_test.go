package transport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestLoneURL(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want string
	}{
		{"https://example.com/post", true, "https://example.com/post"},
		{"  http://example.com  ", true, "http://example.com"},
		{"look at https://example.com", false, ""},
		{"ftp://example.com/file", false, ""},
		{"example.com", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := LoneURL(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserFacingError(t *testing.T) {
	_, ok := UserFacingError(core.ErrNothingToAnswer)
	assert.False(t, ok)

	_, ok = UserFacingError(fmt.Errorf("summary: %w", core.ErrNoContent))
	assert.False(t, ok)

	msg, ok := UserFacingError(&core.ProviderError{Err: errors.New("timeout")})
	assert.True(t, ok)
	assert.Contains(t, msg, "language model")

	msg, ok = UserFacingError(errors.New("disk full"))
	assert.True(t, ok)
	assert.NotContains(t, msg, "disk full")
}
