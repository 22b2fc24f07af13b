package util

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPError_Format(t *testing.T) {
	err := &HTTPError{Provider: "ollama", Code: 503}
	assert.Equal(t, "ollama: API returned status 503", err.Error())

	err.Message = "model loading"
	assert.Equal(t, "ollama: API returned status 503: model loading", err.Error())
	assert.Equal(t, 503, err.StatusCode())
}

func TestHTTPError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &HTTPError{Provider: "openai", Code: 500, Err: cause}
	assert.ErrorIs(t, err, cause)
}

func TestReadHTTPError_TrimsAndBounds(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Body:       io.NopCloser(strings.NewReader("  slow down\n" + strings.Repeat("x", 2*maxErrorBody))),
	}
	err := ReadHTTPError("openai", resp)
	require.NotNil(t, err)
	assert.Equal(t, http.StatusTooManyRequests, err.Code)
	assert.True(t, strings.HasPrefix(err.Message, "slow down"))
	assert.LessOrEqual(t, len(err.Message), maxErrorBody)
}
