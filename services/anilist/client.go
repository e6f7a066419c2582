package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://graphql.anilist.co"

// defaultThrottlePause is used when a 429 arrives without a usable
// Retry-After header.
const defaultThrottlePause = 60 * time.Second

// Client is the raw GraphQL transport for the AniList API. All application
// traffic goes through the Gateway, never through the client directly.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an AniList API client. An empty baseURL selects the
// public endpoint.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Do executes one GraphQL operation and returns the raw data payload.
// A transport-successful response carrying API-level errors is a failure.
func (c *Client) Do(ctx context.Context, token, query string, variables map[string]any) (json.RawMessage, error) {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anilist api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ThrottledError{RetryAfter: retryAfter(resp)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// A 404 body still carries a GraphQL error list; try to surface it.
		if apiErr := decodeErrors(resp.StatusCode, respBody); apiErr != nil {
			return nil, apiErr
		}
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, errorFromPayload(resp.StatusCode, parsed.Errors)
	}
	return parsed.Data, nil
}

func decodeErrors(status int, body []byte) error {
	var parsed graphQLResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Errors) == 0 {
		return nil
	}
	return errorFromPayload(status, parsed.Errors)
}

func errorFromPayload(status int, errs []graphQLError) error {
	notFound := len(errs) > 0
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
		if e.Status != http.StatusNotFound {
			notFound = false
		}
	}
	if notFound {
		return ErrNotFound
	}
	return &APIError{Status: status, Messages: messages}
}

func retryAfter(resp *http.Response) time.Duration {
	header := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if header == "" {
		return defaultThrottlePause
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return defaultThrottlePause
	}
	return time.Duration(seconds) * time.Second
}
