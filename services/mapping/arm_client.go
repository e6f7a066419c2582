package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"anisync/models"
)

// armClient talks to the anime-relations-mapper cross-reference service.
// One call returns ids for every scheme the service knows.

type armClient struct {
	baseURL string
	httpc   *http.Client
}

func newARMClient(baseURL string, httpc *http.Client) *armClient {
	if baseURL == "" {
		baseURL = "https://arm.haglund.dev/api/v2"
	}
	if httpc == nil {
		httpc = &http.Client{Timeout: 5 * time.Second}
	}
	return &armClient{baseURL: strings.TrimRight(baseURL, "/"), httpc: httpc}
}

// armSources maps our scheme names to the service's source parameter.
var armSources = map[models.Scheme]string{
	models.SchemeKitsu: "kitsu",
	models.SchemeIMDB:  "imdb",
	models.SchemeMAL:   "myanimelist",
	models.SchemeAniDB: "anidb",
	models.SchemeTMDB:  "themoviedb",
	models.SchemeTVDB:  "thetvdb",
}

// armSourceAniList is the source name for reverse lookups by canonical id.
const armSourceAniList = "anilist"

type armResponse struct {
	AniList     int             `json:"anilist"`
	AniDB       int             `json:"anidb"`
	Kitsu       int             `json:"kitsu"`
	MAL         int             `json:"myanimelist"`
	IMDB        string          `json:"imdb"`
	TheMovieDB  json.RawMessage `json:"themoviedb"` // number or string depending on title
	TheTVDB     int             `json:"thetvdb"`
}

// Resolve cross-references one external id. A zero MediaIDs with nil error
// means the service has no record.
func (c *armClient) Resolve(ctx context.Context, source, id string) (models.MediaIDs, error) {
	endpoint := fmt.Sprintf("%s/ids?source=%s&id=%s", c.baseURL, url.QueryEscape(source), url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.MediaIDs{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.MediaIDs{}, fmt.Errorf("arm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return models.MediaIDs{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return models.MediaIDs{}, fmt.Errorf("arm lookup failed: %s - %s", resp.Status, string(body))
	}

	var parsed armResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.MediaIDs{}, fmt.Errorf("decode arm response: %w", err)
	}

	ids := models.MediaIDs{
		AniList: parsed.AniList,
		AniDB:   parsed.AniDB,
		Kitsu:   parsed.Kitsu,
		MAL:     parsed.MAL,
		IMDB:    strings.TrimSpace(parsed.IMDB),
		TVDB:    parsed.TheTVDB,
	}
	ids.TMDB = decodeFlexibleInt(parsed.TheMovieDB)
	return ids, nil
}

// decodeFlexibleInt accepts a JSON number or numeric string.
func decodeFlexibleInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return atoiOrZero(s)
	}
	return 0
}
