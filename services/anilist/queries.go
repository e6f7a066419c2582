package anilist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"anisync/internal/cache"
	"anisync/models"
)

// Media is the subset of an AniList media object the addon consumes.
type Media struct {
	ID       int    `json:"id"`
	IDMal    int    `json:"idMal"`
	Episodes int    `json:"episodes"`
	Format   string `json:"format"`
	Title    struct {
		UserPreferred string `json:"userPreferred"`
	} `json:"title"`
	CoverImage struct {
		ExtraLarge string `json:"extraLarge"`
		Large      string `json:"large"`
	} `json:"coverImage"`
	BannerImage string   `json:"bannerImage"`
	Description string   `json:"description"`
	Genres      []string `json:"genres"`
	StartDate   struct {
		Year int `json:"year"`
	} `json:"startDate"`
}

// SingleUnit reports whether the work counts as one watchable unit.
func (m Media) SingleUnit() bool {
	return m.Format == "MOVIE" || m.Episodes == 1
}

// WatchListItem is one entry of the user's media lists.
type WatchListItem struct {
	Status   models.ListStatus `json:"status"`
	Progress int               `json:"progress"`
	Media    Media             `json:"media"`
}

const mediaListEntryQuery = `
query ($mediaId: Int) {
  Media(id: $mediaId, type: ANIME) {
    id
    idMal
    episodes
    format
    title { userPreferred }
    mediaListEntry { id progress status }
  }
}`

const saveEntryMutation = `
mutation ($mediaId: Int, $progress: Int, $status: MediaListStatus) {
  SaveMediaListEntry(mediaId: $mediaId, progress: $progress, status: $status) {
    id
    progress
    status
  }
}`

const viewerQuery = `
query { Viewer { id name } }`

const watchListQuery = `
query ($userId: Int, $statuses: [MediaListStatus]) {
  MediaListCollection(userId: $userId, type: ANIME, status_in: $statuses, sort: UPDATED_TIME_DESC) {
    lists {
      entries {
        status
        progress
        media {
          id
          idMal
          episodes
          format
          title { userPreferred }
          coverImage { extraLarge large }
          bannerImage
          description(asHtml: false)
          genres
          startDate { year }
        }
      }
    }
  }
}`

const searchQuery = `
query ($search: String) {
  Page(page: 1, perPage: 1) {
    media(search: $search, type: ANIME, sort: SEARCH_MATCH) {
      id
    }
  }
}`

// API is the typed operation layer over the gateway. Cacheable reads go
// through the query cache; the save mutation flushes it on success.
type API struct {
	gateway *Gateway
	queries *cache.QueryCache
}

// NewAPI wires the gateway to the shared query cache.
func NewAPI(gateway *Gateway, queries *cache.QueryCache) *API {
	return &API{gateway: gateway, queries: queries}
}

// ViewerID resolves the authenticated user's AniList id. Stable per token,
// so the result is cached.
func (a *API) ViewerID(ctx context.Context, token string) (int, error) {
	if strings.TrimSpace(token) == "" {
		return 0, ErrMissingToken
	}
	key := cache.Key("viewer", map[string]any{"token": token})
	value, err := a.queries.GetOrCompute(ctx, key, func() (any, error) {
		data, err := a.gateway.Execute(ctx, Request{Token: token, Query: viewerQuery})
		if err != nil {
			return nil, err
		}
		var payload struct {
			Viewer struct {
				ID int `json:"id"`
			} `json:"Viewer"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode viewer: %w", err)
		}
		if payload.Viewer.ID == 0 {
			return nil, ErrNotFound
		}
		return payload.Viewer.ID, nil
	})
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}

// MediaListEntry fetches the current list state for one media work. Never
// cached: the state changes behind our back.
func (a *API) MediaListEntry(ctx context.Context, token string, mediaID int) (models.ListEntry, error) {
	if strings.TrimSpace(token) == "" {
		return models.ListEntry{}, ErrMissingToken
	}
	data, err := a.gateway.Execute(ctx, Request{
		Token:     token,
		Query:     mediaListEntryQuery,
		Variables: map[string]any{"mediaId": mediaID},
	})
	if err != nil {
		return models.ListEntry{}, err
	}

	var payload struct {
		Media *struct {
			Media
			MediaListEntry *struct {
				ID       int               `json:"id"`
				Progress int               `json:"progress"`
				Status   models.ListStatus `json:"status"`
			} `json:"mediaListEntry"`
		} `json:"Media"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return models.ListEntry{}, fmt.Errorf("decode media: %w", err)
	}
	if payload.Media == nil {
		return models.ListEntry{}, ErrNotFound
	}

	entry := models.ListEntry{
		MediaID:    payload.Media.ID,
		Episodes:   payload.Media.Episodes,
		SingleUnit: payload.Media.Media.SingleUnit(),
		Title:      payload.Media.Title.UserPreferred,
	}
	if payload.Media.MediaListEntry != nil {
		entry.EntryID = payload.Media.MediaListEntry.ID
		entry.Progress = payload.Media.MediaListEntry.Progress
		entry.Status = payload.Media.MediaListEntry.Status
	}
	return entry, nil
}

// SaveProgress writes a new progress/status pair. The query cache is flushed
// after a successful write so stale list views cannot survive a mutation.
func (a *API) SaveProgress(ctx context.Context, token string, mediaID, progress int, status models.ListStatus) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingToken
	}
	variables := map[string]any{"mediaId": mediaID, "progress": progress}
	if status != "" {
		variables["status"] = string(status)
	}
	_, err := a.gateway.Execute(ctx, Request{Token: token, Query: saveEntryMutation, Variables: variables})
	if err != nil {
		return err
	}
	a.queries.Flush()
	return nil
}

// WatchList returns the user's list entries for the given statuses,
// memoized through the single-flight query cache.
func (a *API) WatchList(ctx context.Context, token string, statuses []models.ListStatus) ([]WatchListItem, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	userID, err := a.ViewerID(ctx, token)
	if err != nil {
		return nil, err
	}

	key := cache.Key("watchlist", map[string]any{"userId": userID, "statuses": statuses})
	value, err := a.queries.GetOrCompute(ctx, key, func() (any, error) {
		statusStrings := make([]string, 0, len(statuses))
		for _, s := range statuses {
			statusStrings = append(statusStrings, string(s))
		}
		data, err := a.gateway.Execute(ctx, Request{
			Token:     token,
			Query:     watchListQuery,
			Variables: map[string]any{"userId": userID, "statuses": statusStrings},
		})
		if err != nil {
			return nil, err
		}
		var payload struct {
			MediaListCollection struct {
				Lists []struct {
					Entries []WatchListItem `json:"entries"`
				} `json:"lists"`
			} `json:"MediaListCollection"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode watch list: %w", err)
		}
		items := []WatchListItem{}
		for _, list := range payload.MediaListCollection.Lists {
			items = append(items, list.Entries...)
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]WatchListItem), nil
}

// SearchByTitle returns the best-matching media id for a title, or 0 when
// nothing matches. Cached: search results are stable enough for the TTL.
func (a *API) SearchByTitle(ctx context.Context, token, title string) (int, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, nil
	}
	key := cache.Key("search", map[string]any{"title": title})
	value, err := a.queries.GetOrCompute(ctx, key, func() (any, error) {
		data, err := a.gateway.Execute(ctx, Request{
			Token:     token,
			Query:     searchQuery,
			Variables: map[string]any{"search": title},
		})
		if err != nil {
			return nil, err
		}
		var payload struct {
			Page struct {
				Media []struct {
					ID int `json:"id"`
				} `json:"media"`
			} `json:"Page"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode search: %w", err)
		}
		if len(payload.Page.Media) == 0 {
			return 0, nil
		}
		return payload.Page.Media[0].ID, nil
	})
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}
