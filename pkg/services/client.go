package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/blush-marketing/core/internal/config"
	"github.com/blush-marketing/core/pkg/logger"
)

// APIClient is a JSON HTTP client for the upstream marketing APIs. Every
// request goes through a circuit breaker so a flapping upstream cannot
// pile failed calls onto the job schedule.
type APIClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewAPIClient creates a client for the given upstream base URL.
func NewAPIClient(name, baseURL string, cfg *config.Config) *APIClient {
	log := logger.New(name)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("action", "breaker_state_change").
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &APIClient{
		baseURL: baseURL,
		apiKey:  cfg.External.APIKey,
		client: &http.Client{
			Timeout: time.Duration(cfg.External.Timeout) * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// GetJSON fetches path from the upstream and decodes the body into out.
func (c *APIClient) GetJSON(ctx context.Context, path string, out any) error {
	url := c.baseURL + path

	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.LogAPICall(http.MethodGet, url, 0, time.Since(start), err)
			return nil, fmt.Errorf("failed to make request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		c.logger.LogAPICall(http.MethodGet, url, resp.StatusCode, time.Since(start), nil)

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	return err
}
