// Package metadata holds the thin clients for the external metadata
// collaborators: name-based title fallback and artwork lookup.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// CinemetaClient resolves an IMDb id to a display title. Used as the
// name-based search fallback when no id mapping exists.
type CinemetaClient struct {
	baseURL string
	httpc   *http.Client
}

// NewCinemetaClient creates a client for the public Cinemeta catalog.
func NewCinemetaClient(baseURL string, httpc *http.Client) *CinemetaClient {
	if baseURL == "" {
		baseURL = "https://v3-cinemeta.strem.io"
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 5 * time.Second}
	}
	return &CinemetaClient{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

// Title returns the name for an IMDb id, or "" when unknown.
func (c *CinemetaClient) Title(ctx context.Context, imdbID, mediaType string) (string, error) {
	if imdbID == "" {
		return "", nil
	}
	if mediaType != "movie" {
		mediaType = "series"
	}
	url := fmt.Sprintf("%s/meta/%s/%s.json", c.baseURL, mediaType, imdbID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("cinemeta request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("cinemeta lookup failed: %s - %s", resp.Status, string(body))
	}

	var parsed struct {
		Meta struct {
			Name string `json:"name"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode cinemeta response: %w", err)
	}
	return strings.TrimSpace(parsed.Meta.Name), nil
}
