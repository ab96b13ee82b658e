package forwarder_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghostrelay/controlplane/internal/forwarder"
	"github.com/stretchr/testify/assert"
)

func TestForward_SucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := forwarder.New(forwarder.Config{URL: srv.URL, RetryCount: 2, Backoff: time.Millisecond})
	result := f.Forward(context.Background(), []byte(`{"id":"1"}`))

	assert.True(t, result.Forwarded)
	assert.Equal(t, 1, result.Attempts)
}

func TestForward_RetriesOnFailureThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := forwarder.New(forwarder.Config{URL: srv.URL, RetryCount: 2, Backoff: time.Millisecond, BreakerMaxFails: 10})
	result := f.Forward(context.Background(), []byte(`{}`))

	assert.True(t, result.Forwarded)
	assert.Equal(t, 2, result.Attempts)
}

func TestForward_GivesUpAfterExhaustingRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := forwarder.New(forwarder.Config{URL: srv.URL, RetryCount: 1, Backoff: time.Millisecond, BreakerMaxFails: 10})
	result := f.Forward(context.Background(), []byte(`{}`))

	assert.False(t, result.Forwarded)
	assert.Equal(t, 2, result.Attempts)
	assert.Error(t, result.Err)
}

func TestForward_BreakerTripsOpenAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := forwarder.New(forwarder.Config{URL: srv.URL, RetryCount: 0, Backoff: time.Millisecond, BreakerMaxFails: 2, BreakerTimeout: time.Hour})

	f.Forward(context.Background(), []byte(`{}`))
	f.Forward(context.Background(), []byte(`{}`))
	result := f.Forward(context.Background(), []byte(`{}`))

	assert.False(t, result.Forwarded)
	assert.Equal(t, 1, result.Attempts, "an open breaker should fail fast without a local retry loop")
}
