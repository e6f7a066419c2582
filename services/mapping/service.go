// Package mapping resolves identifiers between the supported external
// schemes and the canonical AniList id, tiered as cache, durable store,
// then remote lookup services.
package mapping

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"anisync/internal/cache"
	"anisync/internal/database"
	"anisync/models"
)

// Service is the resolution layer. All results found remotely are written
// back to both the mapping cache and the durable store.
type Service struct {
	store *database.MappingStore
	cache *cache.Store[string]
	kitsu *kitsuClient
	arm   *armClient
}

// Config carries the lookup service endpoints; empty values select the
// public defaults.
type Config struct {
	KitsuURL string
	ARMURL   string
	// HTTPClient overrides the 5s-timeout default, mainly for tests.
	HTTPClient *http.Client
}

// NewService builds the resolution layer on top of the durable store and the
// shared mapping cache.
func NewService(store *database.MappingStore, mappingCache *cache.Store[string], cfg Config) *Service {
	return &Service{
		store: store,
		cache: mappingCache,
		kitsu: newKitsuClient(cfg.KitsuURL, cfg.HTTPClient),
		arm:   newARMClient(cfg.ARMURL, cfg.HTTPClient),
	}
}

func forwardKey(scheme models.Scheme, externalID string) string {
	return fmt.Sprintf("fwd:%s:%s", scheme, externalID)
}

func reverseKey(anilistID int, scheme models.Scheme) string {
	return fmt.Sprintf("rev:%d:%s", anilistID, scheme)
}

// ResolveAniListID maps an external id to the canonical AniList id.
// Returns (0, nil) when no mapping exists anywhere; that is a valid
// "nothing to do" outcome, not an error.
func (s *Service) ResolveAniListID(ctx context.Context, scheme models.Scheme, externalID string) (int, error) {
	if !scheme.Valid() {
		return 0, fmt.Errorf("%w: %q", database.ErrUnknownScheme, scheme)
	}
	if externalID == "" {
		return 0, nil
	}

	if cached, ok := s.cache.Get(forwardKey(scheme, externalID)); ok {
		return atoiOrZero(cached), nil
	}

	if id, err := s.store.Lookup(ctx, scheme, externalID); err != nil {
		return 0, err
	} else if id > 0 {
		s.cache.Set(forwardKey(scheme, externalID), strconv.Itoa(id))
		return id, nil
	}

	ids, err := s.remoteLookup(ctx, scheme, externalID)
	if err != nil {
		return 0, err
	}
	if ids.AniList == 0 {
		// Negative results are memoized so repeated misses stay cheap.
		s.cache.Set(forwardKey(scheme, externalID), "0")
		return 0, nil
	}

	setSchemeValue(&ids, scheme, externalID)
	s.writeBack(ctx, ids)
	return ids.AniList, nil
}

// ResolveExternalID maps a canonical id to the requested scheme's id.
// Returns ("", nil) when no mapping is found.
func (s *Service) ResolveExternalID(ctx context.Context, anilistID int, scheme models.Scheme) (string, error) {
	if !scheme.Valid() {
		return "", fmt.Errorf("%w: %q", database.ErrUnknownScheme, scheme)
	}
	if anilistID <= 0 {
		return "", nil
	}

	if cached, ok := s.cache.Get(reverseKey(anilistID, scheme)); ok {
		return cached, nil
	}

	if value, err := s.store.LookupExternal(ctx, anilistID, scheme); err != nil {
		return "", err
	} else if value != "" {
		s.cache.Set(reverseKey(anilistID, scheme), value)
		return value, nil
	}

	// One cross-reference call returns every scheme the service knows;
	// all of them are written back even though only one was requested.
	ids, err := s.arm.Resolve(ctx, armSourceAniList, strconv.Itoa(anilistID))
	if err != nil {
		return "", err
	}
	if ids.AniList == 0 {
		ids.AniList = anilistID
	}
	s.writeBack(ctx, ids)

	value := ids.Get(scheme)
	s.cache.Set(reverseKey(anilistID, scheme), value)
	return value, nil
}

// remoteLookup cascades the scheme-specific primary service, then the
// general cross-reference service; the first non-empty result wins.
func (s *Service) remoteLookup(ctx context.Context, scheme models.Scheme, externalID string) (models.MediaIDs, error) {
	if scheme == models.SchemeKitsu {
		ids, err := s.kitsu.Mappings(ctx, externalID)
		if err != nil {
			log.Printf("[mapping] kitsu lookup failed for %s, falling back: %v", externalID, err)
		} else if ids.AniList > 0 {
			return ids, nil
		}
	}

	source, ok := armSources[scheme]
	if !ok {
		return models.MediaIDs{}, nil
	}
	ids, err := s.arm.Resolve(ctx, source, externalID)
	if err != nil {
		return models.MediaIDs{}, err
	}
	return ids, nil
}

// writeBack persists every scheme of a lookup result to cache and store.
// Store conflicts are non-fatal (the existing mapping wins) and surface only
// in the log.
func (s *Service) writeBack(ctx context.Context, ids models.MediaIDs) {
	if ids.AniList <= 0 {
		return
	}
	for _, scheme := range models.Schemes {
		value := ids.Get(scheme)
		if value == "" {
			continue
		}
		s.cache.Set(forwardKey(scheme, value), strconv.Itoa(ids.AniList))
		s.cache.Set(reverseKey(ids.AniList, scheme), value)
	}
	if err := s.store.UpsertIDs(ctx, ids); err != nil {
		log.Printf("[mapping] failed to persist mappings for anilist=%d: %v", ids.AniList, err)
	}
}

func setSchemeValue(ids *models.MediaIDs, scheme models.Scheme, value string) {
	switch scheme {
	case models.SchemeKitsu:
		if ids.Kitsu == 0 {
			ids.Kitsu = atoiOrZero(value)
		}
	case models.SchemeIMDB:
		if ids.IMDB == "" {
			ids.IMDB = value
		}
	case models.SchemeMAL:
		if ids.MAL == 0 {
			ids.MAL = atoiOrZero(value)
		}
	case models.SchemeAniDB:
		if ids.AniDB == 0 {
			ids.AniDB = atoiOrZero(value)
		}
	case models.SchemeTMDB:
		if ids.TMDB == 0 {
			ids.TMDB = atoiOrZero(value)
		}
	case models.SchemeTVDB:
		if ids.TVDB == 0 {
			ids.TVDB = atoiOrZero(value)
		}
	}
}
