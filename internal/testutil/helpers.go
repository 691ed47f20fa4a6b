package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertNoError stops the test on err.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	require.NoError(t, err)
}

func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	assert.Equal(t, want, got)
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	assert.True(t, condition, msg)
}

func AssertFalse(t *testing.T, condition bool, msg string) {
	t.Helper()
	assert.False(t, condition, msg)
}

func AssertContains(t *testing.T, s, substring string) {
	t.Helper()
	assert.Contains(t, s, substring)
}

func AssertNotContains(t *testing.T, s, substring string) {
	t.Helper()
	assert.NotContains(t, s, substring)
}

// AssertStatusCode reports the body along with a status mismatch.
func AssertStatusCode(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	assert.Equal(t, expected, w.Code, "body: %s", w.Body.String())
}

// AssertJSONContains checks one top-level field of a JSON object body.
// Numbers decode as float64.
func AssertJSONContains(t *testing.T, w *httptest.ResponseRecorder, key string, expected any) {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	require.Contains(t, body, key, "body: %s", w.Body.String())
	assert.Equal(t, expected, body[key])
}

// AssertJSONError checks the status and that the error envelope's code
// equals want or its message mentions it.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, want string) {
	t.Helper()
	AssertStatusCode(t, w, expectedStatus)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	if body.Error.Code != want {
		assert.Contains(t, body.Error.Message, want)
	}
}

func AssertHeader(t *testing.T, w *httptest.ResponseRecorder, key, expected string) {
	t.Helper()
	assert.Equal(t, expected, w.Header().Get(key), "header %s", key)
}

func AssertHeaderContains(t *testing.T, w *httptest.ResponseRecorder, key, substring string) {
	t.Helper()
	assert.Contains(t, w.Header().Get(key), substring, "header %s", key)
}

// NewAuthRequest builds a request with an optional JSON body and, when token
// is set, a bearer Authorization header.
func NewAuthRequest(t *testing.T, method, url, token string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// DecodeJSON decodes the response body into T.
func DecodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result), "body: %s", w.Body.String())
	return result
}
