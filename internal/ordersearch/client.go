package ordersearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/fieldops/internal/domain"
	"github.com/kursadbilgin/fieldops/internal/ratelimit"
	"github.com/tidwall/gjson"
)

const (
	defaultSearchTimeout = 30 * time.Second
	rateLimitScope       = "ordersearch"
)

type searchRequest struct {
	StartDate         string   `json:"startDate"`
	EndDate           string   `json:"endDate"`
	ValidStatuses     []string `json:"validStatuses"`
	BatchSize         int      `json:"batchSize,omitempty"`
	ContinuationToken *string  `json:"continuationToken"`
}

type searchResponse struct {
	Orders            []json.RawMessage `json:"orders"`
	TotalOrders       *int              `json:"totalOrders"`
	CurrentPage       *int              `json:"currentPage"`
	TotalPages        *int              `json:"totalPages"`
	ContinuationToken *string           `json:"continuationToken"`
	IsComplete        *bool             `json:"isComplete"`
}

// Client calls the order search function that fronts the routing API.
type Client struct {
	client      *resty.Client
	endpoint    string
	apiKey      string
	rateLimiter ratelimit.RateLimiter
}

func NewClient(endpoint string, apiKey string, timeout time.Duration) (*Client, error) {
	client := resty.New()
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewClientWithResty(endpoint, apiKey, client)
}

func NewClientWithResty(endpoint string, apiKey string, client *resty.Client) (*Client, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("order search endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid order search endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSearchTimeout)
	}
	// Retries belong to the retry controller.
	client.SetRetryCount(0)

	return &Client{
		client:   client,
		endpoint: trimmedEndpoint,
		apiKey:   strings.TrimSpace(apiKey),
	}, nil
}

// SetRateLimiter makes every search wait for a slot first.
func (c *Client) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if c == nil {
		return
	}
	c.rateLimiter = limiter
}

func (c *Client) SearchOrders(ctx context.Context, req domain.BatchRequest) (*domain.BatchResponse, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("order search client is not initialized")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch request: %w", err)
	}

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx, rateLimitScope); err != nil {
			return nil, &APIError{
				Message:   "rate limiter wait failed",
				Transient: !errors.Is(err, context.Canceled),
				Cause:     err,
			}
		}
	}

	payload := searchRequest{
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		ValidStatuses:     req.ValidStatuses,
		BatchSize:         req.BatchSize,
		ContinuationToken: req.ContinuationToken,
	}

	request := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload)
	if c.apiKey != "" {
		request.SetAuthToken(c.apiKey)
	}

	response, err := request.Post(c.endpoint)
	if err != nil {
		return nil, &APIError{
			Message:   "order search request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &APIError{
			Message:   "order search returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &APIError{
			StatusCode: statusCode,
			Message:    apiErrorMessage(statusCode, response.Body()),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	body := response.Body()
	if !gjson.ValidBytes(body) {
		return nil, &APIError{
			StatusCode: statusCode,
			Message:    "order search returned malformed JSON",
			Transient:  true,
		}
	}
	// A well-formed body that breaks the contract will not improve on retry.
	if err := validateResponse(body); err != nil {
		return nil, &APIError{
			StatusCode: statusCode,
			Message:    "unexpected order search response",
			Transient:  false,
			Cause:      err,
		}
	}

	var page searchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &APIError{
			StatusCode: statusCode,
			Message:    "failed to decode order search response",
			Transient:  true,
			Cause:      err,
		}
	}

	return toBatchResponse(page), nil
}

func toBatchResponse(payload searchResponse) *domain.BatchResponse {
	orders := make([][]byte, 0, len(payload.Orders))
	for _, raw := range payload.Orders {
		orders = append(orders, []byte(raw))
	}

	resp := &domain.BatchResponse{
		Orders:            orders,
		TotalOrders:       payload.TotalOrders,
		CurrentPage:       payload.CurrentPage,
		TotalPages:        payload.TotalPages,
		ContinuationToken: payload.ContinuationToken,
	}
	if payload.IsComplete != nil {
		resp.IsComplete = *payload.IsComplete
	}
	return resp
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		(statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

// apiErrorMessage prefers the function layer's {"error": "..."} body.
func apiErrorMessage(statusCode int, body []byte) string {
	base := fmt.Sprintf("order search returned status %d", statusCode)

	if gjson.ValidBytes(body) {
		for _, path := range []string{"error", "message", "error.message"} {
			if msg := strings.TrimSpace(gjson.GetBytes(body, path).String()); msg != "" && !strings.HasPrefix(msg, "{") {
				return fmt.Sprintf("%s: %s", base, msg)
			}
		}
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, text)
}
