// Package directory looks up contact details and consents in the user service.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planify-notification/internal/model"
	"planify-notification/pkg/circuitbreaker"
	"planify-notification/pkg/logger"
	"planify-notification/pkg/metrics"
	"planify-notification/pkg/resilience"
	"planify-notification/pkg/trace"
)

var (
	// ErrUserNotFound the user service has no such user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnavailable the user service is failing and calls are short-circuited.
	ErrUnavailable = errors.New("user directory unavailable")
)

// Client resolves a user id to a profile.
type Client interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error)
}

// StatusError is a non-2xx answer other than 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "user service returned " + strconv.Itoa(e.Code) + ": " + e.Body
}

// HTTPClient calls GET {baseURL}/api/users/{id}.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetUser(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	start := time.Now()
	status := "success"
	defer func() { metrics.RecordDirectoryCallLatency(status, time.Since(start)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/users/"+userID.String(), nil)
	if err != nil {
		status = "error"
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set(trace.HeaderName, traceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("failed to call user service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		status = "404"
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		status = strconv.Itoa(resp.StatusCode)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var profile model.UserProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		status = "decode_error"
		return nil, fmt.Errorf("failed to decode user %s: %w", userID, err)
	}
	return &profile, nil
}

// ResilientClient guards another Client with retry, circuit breaker and bulkhead.
type ResilientClient struct {
	next   Client
	policy *resilience.Policy
	logger *zap.Logger
}

func NewResilientClient(next Client, policy *resilience.Policy, logger *zap.Logger) *ResilientClient {
	return &ResilientClient{next: next, policy: policy, logger: logger}
}

// IsPermanent errors are neither retried nor counted against the circuit.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrUserNotFound) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

func (c *ResilientClient) GetUser(ctx context.Context, userID uuid.UUID) (*model.UserProfile, error) {
	var profile *model.UserProfile
	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		p, err := c.next.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})

	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen), errors.Is(err, resilience.ErrBulkheadFull):
		logger.WithTrace(ctx, c.logger).Warn("user directory short-circuited",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return nil, err
	}
}
