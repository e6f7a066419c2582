package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"anisync/models"
)

// Minimal Kitsu JSON:API client; only the mappings relationship is used.

type kitsuClient struct {
	baseURL string
	httpc   *http.Client
}

func newKitsuClient(baseURL string, httpc *http.Client) *kitsuClient {
	if baseURL == "" {
		baseURL = "https://kitsu.io/api/edge"
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 5 * time.Second}
	}
	return &kitsuClient{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

type kitsuMappingsResponse struct {
	Data []struct {
		Attributes struct {
			ExternalSite string `json:"externalSite"`
			ExternalID   string `json:"externalId"`
		} `json:"attributes"`
	} `json:"data"`
}

// Mappings returns the external ids Kitsu knows for one of its anime ids.
func (c *kitsuClient) Mappings(ctx context.Context, kitsuID string) (models.MediaIDs, error) {
	url := fmt.Sprintf("%s/anime/%s/mappings", c.baseURL, kitsuID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.MediaIDs{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.MediaIDs{}, fmt.Errorf("kitsu mappings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.MediaIDs{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.MediaIDs{}, fmt.Errorf("kitsu mappings failed: %s - %s", resp.Status, string(body))
	}

	var parsed kitsuMappingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.MediaIDs{}, fmt.Errorf("decode kitsu mappings: %w", err)
	}

	ids := models.MediaIDs{Kitsu: atoiOrZero(kitsuID)}
	for _, mapping := range parsed.Data {
		site := strings.ToLower(mapping.Attributes.ExternalSite)
		value := strings.TrimSpace(mapping.Attributes.ExternalID)
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(site, "anilist"):
			ids.AniList = atoiOrZero(value)
		case strings.HasPrefix(site, "myanimelist"):
			ids.MAL = atoiOrZero(value)
		case site == "anidb":
			ids.AniDB = atoiOrZero(value)
		case strings.HasPrefix(site, "thetvdb"):
			// Kitsu stores "seriesId/seasonNumber" for some shows.
			series, _, _ := strings.Cut(value, "/")
			ids.TVDB = atoiOrZero(series)
		case strings.HasPrefix(site, "themoviedb"):
			ids.TMDB = atoiOrZero(value)
		}
	}
	return ids, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
