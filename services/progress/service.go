// Package progress reconciles observed watch events against the user's
// upstream media list and decides whether a write is warranted.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"anisync/models"
	"anisync/services/anilist"
)

type listAPI interface {
	MediaListEntry(ctx context.Context, token string, mediaID int) (models.ListEntry, error)
	SaveProgress(ctx context.Context, token string, mediaID, progress int, status models.ListStatus) error
	SearchByTitle(ctx context.Context, token, title string) (int, error)
}

type idResolver interface {
	ResolveAniListID(ctx context.Context, scheme models.Scheme, externalID string) (int, error)
}

type titleSource interface {
	Title(ctx context.Context, imdbID, mediaType string) (string, error)
}

// Service is the reconciliation state machine. It never retries: transient
// throttling retries belong to the gateway.
type Service struct {
	api      listAPI
	resolver idResolver
	titles   titleSource
}

// NewService wires the reconciler to the upstream API, the id resolution
// layer, and the name-fallback lookup.
func NewService(api listAPI, resolver idResolver, titles titleSource) *Service {
	return &Service{api: api, resolver: resolver, titles: titles}
}

// RecordEpisode processes one watched-episode event. A nil return means the
// event was fully handled, including the legitimate "nothing to do" cases:
// no id mapping, media absent upstream, progress not advancing, or the
// listed-only guard. Real fetch/write failures are returned for the caller
// to log; the addon surface still acknowledges success to the host either
// way.
func (s *Service) RecordEpisode(ctx context.Context, event models.WatchEvent) error {
	if strings.TrimSpace(event.Token) == "" {
		return anilist.ErrMissingToken
	}
	if event.Episode < 1 {
		return fmt.Errorf("invalid episode number %d", event.Episode)
	}

	mediaID, err := s.resolveMedia(ctx, event)
	if err != nil {
		return err
	}
	if mediaID == 0 {
		log.Printf("[progress] no mapping for %s:%s, dropping event", event.Scheme, event.ExternalID)
		return nil
	}

	entry, err := s.api.MediaListEntry(ctx, event.Token, mediaID)
	if errors.Is(err, anilist.ErrNotFound) {
		log.Printf("[progress] anilist media %d not found, dropping event", mediaID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch list entry for media %d: %w", mediaID, err)
	}

	if event.ListedOnly && entry.Status == "" {
		log.Printf("[progress] media %d not on any list and listed-only is set, dropping event", mediaID)
		return nil
	}

	decision := Reconcile(entry, event.Episode)
	if !decision.Write {
		return nil
	}

	if err := s.api.SaveProgress(ctx, event.Token, mediaID, decision.Progress, decision.Status); err != nil {
		return fmt.Errorf("save progress %d for media %d: %w", decision.Progress, mediaID, err)
	}
	log.Printf("[progress] media %d (%s): progress %d -> %d, status %s", mediaID, entry.Title, entry.Progress, decision.Progress, decision.Status)
	return nil
}

// resolveMedia maps the event's external id to the canonical id, falling
// back to a title search when enabled.
func (s *Service) resolveMedia(ctx context.Context, event models.WatchEvent) (int, error) {
	if event.AniListID > 0 {
		return event.AniListID, nil
	}
	mediaID, err := s.resolver.ResolveAniListID(ctx, event.Scheme, event.ExternalID)
	if err != nil {
		return 0, fmt.Errorf("resolve %s:%s: %w", event.Scheme, event.ExternalID, err)
	}
	if mediaID > 0 || !event.SearchFallback {
		return mediaID, nil
	}

	title := event.TitleFallback
	if title == "" && event.Scheme == models.SchemeIMDB && s.titles != nil {
		title, err = s.titles.Title(ctx, event.ExternalID, event.MediaType)
		if err != nil {
			log.Printf("[progress] title lookup for %s failed: %v", event.ExternalID, err)
			return 0, nil
		}
	}
	if title == "" {
		return 0, nil
	}
	mediaID, err = s.api.SearchByTitle(ctx, event.Token, title)
	if err != nil {
		return 0, fmt.Errorf("title search %q: %w", title, err)
	}
	return mediaID, nil
}

// Decision is the reconciliation outcome for one observed episode.
type Decision struct {
	Write    bool
	Progress int
	Status   models.ListStatus
}

// Reconcile computes the new progress and status for an entry given the
// observed episode number. Pure; all the guard rules live here:
// progress never regresses, never exceeds a known total, completion is set
// for single-unit works or on reaching the total, and a completed entry
// observed mid-run is demoted to current rather than silently re-closed.
func Reconcile(entry models.ListEntry, episode int) Decision {
	target := episode
	if entry.SingleUnit {
		target = 1
	}

	if target <= entry.Progress {
		return Decision{}
	}
	if !entry.SingleUnit && entry.Episodes > 0 && target > entry.Episodes {
		return Decision{}
	}

	status := entry.Status
	switch {
	case entry.SingleUnit, entry.Episodes > 0 && target >= entry.Episodes:
		status = models.StatusCompleted
	case entry.Status == models.StatusCompleted:
		status = models.StatusCurrent
	case entry.Status == "":
		// Not on a list yet; the write adds it as currently watching.
		status = models.StatusCurrent
	}

	return Decision{Write: true, Progress: target, Status: status}
}
