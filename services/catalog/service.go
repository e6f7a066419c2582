// Package catalog projects the user's upstream watch lists into the addon's
// catalog shape, with optional logo enrichment.
package catalog

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"anisync/internal/cache"
	"anisync/models"
	"anisync/services/anilist"
)

// enrichWorkers bounds the logo enrichment fan-out per catalog request.
const enrichWorkers = 4

type watchListAPI interface {
	WatchList(ctx context.Context, token string, statuses []models.ListStatus) ([]anilist.WatchListItem, error)
}

type externalResolver interface {
	ResolveExternalID(ctx context.Context, anilistID int, scheme models.Scheme) (string, error)
}

type logoSource interface {
	LogoURL(ctx context.Context, externalID, kind string) (string, error)
}

// Service assembles catalog responses. Per-item failures degrade that item,
// never the whole listing.
type Service struct {
	api      watchListAPI
	resolver externalResolver
	fanart   logoSource
	logos    *cache.Store[string]
}

// NewService wires the catalog projector. logos memoizes artwork lookups;
// fanart may be nil when no artwork key is configured.
func NewService(api watchListAPI, resolver externalResolver, fanart logoSource, logos *cache.Store[string]) *Service {
	return &Service{api: api, resolver: resolver, fanart: fanart, logos: logos}
}

// catalogStatuses maps a catalog id to the upstream statuses it lists.
var catalogStatuses = map[string][]models.ListStatus{
	"watching": {models.StatusCurrent, models.StatusRepeating},
	"planning": {models.StatusPlanning},
	"paused":   {models.StatusPaused},
	"all":      {models.StatusCurrent, models.StatusRepeating, models.StatusPlanning, models.StatusPaused},
}

// Catalogs lists the catalog ids the manifest announces.
func Catalogs() []string {
	return []string{"watching", "planning", "paused", "all"}
}

// WatchList returns the projected catalog for one catalog id.
func (s *Service) WatchList(ctx context.Context, token, catalogID string) ([]models.CatalogMeta, error) {
	statuses, ok := catalogStatuses[catalogID]
	if !ok {
		statuses = catalogStatuses["all"]
	}

	items, err := s.api.WatchList(ctx, token, statuses)
	if err != nil {
		return nil, err
	}

	metas := make([]models.CatalogMeta, 0, len(items))
	for _, item := range items {
		metas = append(metas, s.project(ctx, item))
	}
	s.enrichLogos(ctx, metas, items)
	return metas, nil
}

// project maps one list entry into the addon meta shape. The id prefers the
// kitsu scheme when a mapping exists so the host ecosystem recognizes it.
func (s *Service) project(ctx context.Context, item anilist.WatchListItem) models.CatalogMeta {
	media := item.Media

	mediaType := "series"
	if media.Format == "MOVIE" {
		mediaType = "movie"
	}

	id := fmt.Sprintf("anilist:%d", media.ID)
	if kitsuID, err := s.resolver.ResolveExternalID(ctx, media.ID, models.SchemeKitsu); err == nil && kitsuID != "" {
		id = "kitsu:" + kitsuID
	}

	poster := media.CoverImage.ExtraLarge
	if poster == "" {
		poster = media.CoverImage.Large
	}

	meta := models.CatalogMeta{
		ID:          id,
		Type:        mediaType,
		Name:        media.Title.UserPreferred,
		Poster:      poster,
		Background:  media.BannerImage,
		Description: stripTags(media.Description),
		Genres:      media.Genres,
	}
	if media.StartDate.Year > 0 {
		meta.ReleaseInfo = fmt.Sprintf("%d", media.StartDate.Year)
	}
	return meta
}

// enrichLogos attaches logo artwork where available. Optional side call:
// every failure is swallowed after a log line.
func (s *Service) enrichLogos(ctx context.Context, metas []models.CatalogMeta, items []anilist.WatchListItem) {
	if s.fanart == nil {
		return
	}

	p := pool.New().WithMaxGoroutines(enrichWorkers)
	for i := range metas {
		i := i
		p.Go(func() {
			logo, err := s.logoFor(ctx, items[i].Media, metas[i].Type)
			if err != nil {
				log.Printf("[catalog] logo lookup for anilist=%d failed: %v", items[i].Media.ID, err)
				return
			}
			metas[i].Logo = logo
		})
	}
	p.Wait()
}

func (s *Service) logoFor(ctx context.Context, media anilist.Media, mediaType string) (string, error) {
	cacheKey := fmt.Sprintf("logo:%d", media.ID)
	if cached, ok := s.logos.Get(cacheKey); ok {
		return cached, nil
	}

	scheme := models.SchemeTVDB
	if mediaType == "movie" {
		scheme = models.SchemeTMDB
	}
	externalID, err := s.resolver.ResolveExternalID(ctx, media.ID, scheme)
	if err != nil {
		return "", err
	}
	if externalID == "" {
		s.logos.Set(cacheKey, "")
		return "", nil
	}

	logo, err := s.fanart.LogoURL(ctx, externalID, mediaType)
	if err != nil {
		return "", err
	}
	s.logos.Set(cacheKey, logo)
	return logo, nil
}

// stripTags removes the handful of HTML tags AniList leaves in descriptions.
func stripTags(s string) string {
	replacer := strings.NewReplacer(
		"<br>", "\n", "<br/>", "\n", "<br />", "\n",
		"<i>", "", "</i>", "", "<b>", "", "</b>", "",
		"<em>", "", "</em>", "", "<strong>", "", "</strong>", "",
	)
	return strings.TrimSpace(replacer.Replace(s))
}
