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

// FanartClient fetches logo artwork. Series are keyed by TheTVDB id, movies
// by TheMovieDB id; translating the canonical id into those schemes is the
// caller's job (via the mapping layer).
type FanartClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewFanartClient creates a fanart.tv client. An empty apiKey disables the
// client; LogoURL then always returns "".
func NewFanartClient(baseURL, apiKey string, httpc *http.Client) *FanartClient {
	if baseURL == "" {
		baseURL = "https://webservice.fanart.tv/v3"
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 5 * time.Second}
	}
	return &FanartClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, httpc: httpc}
}

type fanartImage struct {
	URL  string `json:"url"`
	Lang string `json:"lang"`
}

type fanartResponse struct {
	HDTVLogo    []fanartImage `json:"hdtvlogo"`
	HDMovieLogo []fanartImage `json:"hdmovielogo"`
	ClearLogo   []fanartImage `json:"clearlogo"`
	MovieLogo   []fanartImage `json:"movielogo"`
}

// LogoURL returns the best logo for the given external id, or "" when none
// exists. kind is "movie" or "series".
func (c *FanartClient) LogoURL(ctx context.Context, externalID, kind string) (string, error) {
	if c.apiKey == "" || externalID == "" {
		return "", nil
	}

	resource := "tv"
	if kind == "movie" {
		resource = "movies"
	}
	url := fmt.Sprintf("%s/%s/%s?api_key=%s", c.baseURL, resource, externalID, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fanart request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("fanart lookup failed: %s - %s", resp.Status, string(body))
	}

	var parsed fanartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode fanart response: %w", err)
	}

	for _, group := range [][]fanartImage{parsed.HDTVLogo, parsed.HDMovieLogo, parsed.ClearLogo, parsed.MovieLogo} {
		if url := pickLogo(group); url != "" {
			return url, nil
		}
	}
	return "", nil
}

// pickLogo prefers an English logo, then the first available.
func pickLogo(images []fanartImage) string {
	for _, img := range images {
		if img.Lang == "en" && img.URL != "" {
			return img.URL
		}
	}
	for _, img := range images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}
