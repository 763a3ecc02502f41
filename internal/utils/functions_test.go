package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaderArgs(t *testing.T) {
	got := ParseHeaderArgs([]string{
		"Authorization: Basic dXNlcjpwYXNz",
		"X-Empty:",
		"malformed",
		" X-Trim :  value ",
	})
	assert.Equal(t, map[string]string{
		"Authorization": "Basic dXNlcjpwYXNz",
		"X-Empty":       "",
		"X-Trim":        "value",
	}, got)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(-5))
	assert.Equal(t, "1000 B", FormatBytes(1000))
	assert.Equal(t, "1.0 KiB", FormatBytes(1024))
	assert.Equal(t, "0 B/s", FormatSpeed(1024, 0))
	assert.Equal(t, "512 B/s", FormatSpeed(1024, 2))
}

func TestRangedHTTPClientHeaders(t *testing.T) {
	var seen http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
	}))
	defer server.Close()

	client := NewRangedHTTPClient(HTTPClientConfig{
		Token:   "secret",
		Headers: map[string]string{"X-Test": "one"},
	})
	client.SetHeader("X-Other", "two")

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, ToolUserAgent, seen.Get("User-Agent"))
	assert.Equal(t, "Bearer secret", seen.Get("Authorization"))
	assert.Equal(t, "one", seen.Get("X-Test"))
	assert.Equal(t, "two", seen.Get("X-Other"))
}

func TestHighThreadModeClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewRangedHTTPClient(HTTPClientConfig{HighThreadMode: true, UserAgent: "custom/1"})
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
