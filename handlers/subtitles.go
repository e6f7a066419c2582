package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"anisync/models"
	"anisync/services/progress"
)

type progressService interface {
	RecordEpisode(ctx context.Context, event models.WatchEvent) error
}

var _ progressService = (*progress.Service)(nil)

// SubtitlesHandler turns subtitle requests into watch events. The subtitle
// resource is the signal that playback started; the response is always an
// empty subtitle list since this addon serves none.
type SubtitlesHandler struct {
	Service progressService
}

func NewSubtitlesHandler(service progressService) *SubtitlesHandler {
	return &SubtitlesHandler{Service: service}
}

type subtitlesResponse struct {
	Subtitles []struct{} `json:"subtitles"`
}

func (h *SubtitlesHandler) Get(w http.ResponseWriter, r *http.Request) {
	// The host expects this response shape no matter what happens below.
	defer respondJSON(w, http.StatusOK, subtitlesResponse{Subtitles: []struct{}{}})

	opts, err := userOptions(r)
	if err != nil {
		log.Printf("[subtitles] skipping sync, bad options: %v", err)
		return
	}

	vars := mux.Vars(r)
	event, err := ParseWatchEvent(vars["type"], vars["id"], opts)
	if err != nil {
		log.Printf("[subtitles] skipping sync, unparseable id %q: %v", vars["id"], err)
		return
	}

	if err := h.Service.RecordEpisode(r.Context(), event); err != nil {
		log.Printf("[subtitles] sync failed for %s:%s ep %d: %v", event.Scheme, event.ExternalID, event.Episode, err)
	}
}

// ParseWatchEvent decodes the composite stream id into a typed event.
// Supported forms: "kitsu:123:5", "kitsu:123", "tt0944947:3:9", "tt0944947"
// and "anilist:456:2". The core only ever sees the typed fields.
func ParseWatchEvent(mediaType, rawID string, opts models.UserOptions) (models.WatchEvent, error) {
	decoded, err := url.PathUnescape(rawID)
	if err != nil {
		decoded = rawID
	}

	event := models.WatchEvent{
		MediaType:      mediaType,
		Episode:        1,
		SearchFallback: opts.SearchFallback,
		ListedOnly:     opts.ListedOnly,
		Token:          opts.Token,
	}

	parts := strings.Split(decoded, ":")
	switch {
	case strings.HasPrefix(decoded, "tt"):
		// tt<imdb>[:season[:episode]]
		event.Scheme = models.SchemeIMDB
		event.ExternalID = parts[0]
		if len(parts) >= 3 {
			event.Season = atoi(parts[1])
			event.Episode = atoi(parts[2])
		} else if len(parts) == 2 {
			event.Episode = atoi(parts[1])
		}
	case parts[0] == "kitsu" && len(parts) >= 2:
		// kitsu:<id>[:episode] - kitsu ids are already per-season
		event.Scheme = models.SchemeKitsu
		event.ExternalID = parts[1]
		if len(parts) >= 3 {
			event.Episode = atoi(parts[2])
		}
	case parts[0] == "anilist" && len(parts) >= 2:
		// Already canonical; no resolution needed.
		event.AniListID = atoi(parts[1])
		if len(parts) >= 3 {
			event.Episode = atoi(parts[2])
		}
	default:
		return models.WatchEvent{}, fmt.Errorf("unsupported id format")
	}

	if event.ExternalID == "" && event.AniListID == 0 {
		return models.WatchEvent{}, fmt.Errorf("missing external id")
	}
	if event.Episode < 1 {
		return models.WatchEvent{}, fmt.Errorf("invalid episode")
	}
	return event, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
