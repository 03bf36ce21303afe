package logger

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestSetup(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, Setup(false).GetLevel())
	assert.Equal(t, zerolog.DebugLevel, Setup(true).GetLevel())
}

func TestRequestLogger(t *testing.T) {
	t.Run("assigns a request id and passes the response through", func(t *testing.T) {
		var seen string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = r.Header.Get(RequestIDHeader)
			w.WriteHeader(http.StatusTeapot)
		}))
		defer srv.Close()

		client := &http.Client{Transport: NewRequestLogger(nil)}
		resp, err := client.Get(srv.URL + "/api/v1/auth/user/")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusTeapot, resp.StatusCode)
		assert.NotEmpty(t, seen)
	})

	t.Run("keeps an existing request id", func(t *testing.T) {
		var seen string
		rt := NewRequestLogger(roundTripFunc(func(req *http.Request) (*http.Response, error) {
			seen = req.Header.Get(RequestIDHeader)
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
		}))

		req := httptest.NewRequest(http.MethodGet, "http://backend.test/", nil)
		req.Header.Set(RequestIDHeader, "abc")
		_, err := rt.RoundTrip(req)
		require.NoError(t, err)
		assert.Equal(t, "abc", seen)
	})

	t.Run("returns transport errors", func(t *testing.T) {
		boom := errors.New("connection refused")
		rt := NewRequestLogger(roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, boom
		}))

		_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://backend.test/", nil))
		require.ErrorIs(t, err, boom)
	})
}
