package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"planify-notification/pkg/config"
	"planify-notification/pkg/resilience"
)

func newPolicy() *resilience.Policy {
	return resilience.NewPolicy("directory", config.ResilienceConfig{
		Retry: config.RetryConfig{MaxAttempts: 2},
		CircuitBreaker: config.CircuitBreakerConfig{
			FailureThreshold: 2,
			SuccessThreshold: 1,
			OpenSeconds:      60,
		},
		Bulkhead: config.BulkheadConfig{MaxConcurrent: 4},
	}, resilience.WithPermanentErrors(IsPermanent))
}

func TestHTTPClient_GetUser(t *testing.T) {
	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/"+userID.String(), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"ana@example.com","emailConsent":true,"phoneNumber":"+38640111222","smsConsent":false,"firstName":"Ana","lastName":"Novak"}`))
	}))
	defer srv.Close()

	profile, err := NewHTTPClient(srv.URL+"/", time.Second).GetUser(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", profile.Email)
	assert.True(t, profile.AllowsEmail())
	assert.False(t, profile.AllowsSMS())
	assert.Equal(t, "+38640111222", profile.PhoneNumber)
}

func TestHTTPClient_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).GetUser(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.True(t, IsPermanent(err))
}

func TestResilientClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewResilientClient(NewHTTPClient(srv.URL, time.Second), newPolicy(), zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := c.GetUser(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrUserNotFound)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestResilientClient_OpensCircuitOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewResilientClient(NewHTTPClient(srv.URL, time.Second), newPolicy(), zap.NewNop())

	_, err := c.GetUser(context.Background(), uuid.New())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, int32(2), calls.Load())

	// circuit is now open: no further HTTP calls
	_, err = c.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}
