package mapping

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"anisync/internal/cache"
	"anisync/internal/database"
	"anisync/models"
)

type fakeUpstream struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeUpstream) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeUpstream) record(path string) {
	f.mu.Lock()
	f.calls[path]++
	f.mu.Unlock()
}

func newTestService(t *testing.T, kitsuHandler, armHandler http.HandlerFunc) (*Service, *database.MappingStore, *fakeUpstream) {
	t.Helper()
	upstream := &fakeUpstream{calls: make(map[string]int)}

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			upstream.record(r.URL.Path)
			if h == nil {
				http.NotFound(w, r)
				return
			}
			h(w, r)
		}
	}
	kitsuSrv := httptest.NewServer(wrap(kitsuHandler))
	armSrv := httptest.NewServer(wrap(armHandler))
	t.Cleanup(kitsuSrv.Close)
	t.Cleanup(armSrv.Close)

	db, err := database.Open(filepath.Join(t.TempDir(), "mappings.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := database.NewMappingStore(db)

	svc := NewService(store, cache.NewStore[string](64, time.Minute), Config{
		KitsuURL: kitsuSrv.URL,
		ARMURL:   armSrv.URL,
	})
	return svc, store, upstream
}

func TestResolveAniListIDViaKitsu(t *testing.T) {
	kitsu := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/anime/7442/mappings" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"data":[
			{"attributes":{"externalSite":"anilist/anime","externalId":"101"}},
			{"attributes":{"externalSite":"myanimelist/anime","externalId":"202"}},
			{"attributes":{"externalSite":"thetvdb/series","externalId":"305074/1"}}
		]}`)
	}
	svc, store, upstream := newTestService(t, kitsu, nil)
	ctx := context.Background()

	id, err := svc.ResolveAniListID(ctx, models.SchemeKitsu, "7442")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != 101 {
		t.Fatalf("expected anilist id 101, got %d", id)
	}

	// The one lookup persists every scheme it returned.
	ids, err := store.IDs(ctx, 101)
	if err != nil {
		t.Fatalf("load ids: %v", err)
	}
	if ids.Kitsu != 7442 || ids.MAL != 202 || ids.TVDB != 305074 {
		t.Fatalf("write-back incomplete: %+v", ids)
	}

	// Second resolution is served from cache.
	if id, _ := svc.ResolveAniListID(ctx, models.SchemeKitsu, "7442"); id != 101 {
		t.Fatalf("cached resolve mismatch: %d", id)
	}
	if got := upstream.count("/anime/7442/mappings"); got != 1 {
		t.Fatalf("expected one kitsu call, got %d", got)
	}
}

func TestResolveAniListIDViaCrossReference(t *testing.T) {
	arm := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("source") != "imdb" || r.URL.Query().Get("id") != "tt2560140" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"anilist":101,"kitsu":7442,"myanimelist":202,"thetvdb":305074,"themoviedb":"62745"}`)
	}
	svc, store, _ := newTestService(t, nil, arm)
	ctx := context.Background()

	id, err := svc.ResolveAniListID(ctx, models.SchemeIMDB, "tt2560140")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != 101 {
		t.Fatalf("expected anilist id 101, got %d", id)
	}

	// The queried id itself is folded into the stored row, and the string
	// form of themoviedb decodes too.
	ids, err := store.IDs(ctx, 101)
	if err != nil {
		t.Fatalf("load ids: %v", err)
	}
	if ids.IMDB != "tt2560140" || ids.TMDB != 62745 {
		t.Fatalf("write-back incomplete: %+v", ids)
	}
}

func TestResolveAniListIDFallsBackWhenKitsuFails(t *testing.T) {
	kitsu := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}
	arm := func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"anilist":101,"kitsu":7442}`)
	}
	svc, _, _ := newTestService(t, kitsu, arm)

	id, err := svc.ResolveAniListID(context.Background(), models.SchemeKitsu, "7442")
	if err != nil {
		t.Fatalf("resolve should fall back, got %v", err)
	}
	if id != 101 {
		t.Fatalf("expected anilist id 101 via fallback, got %d", id)
	}
}

func TestResolveAniListIDMissIsMemoized(t *testing.T) {
	svc, _, upstream := newTestService(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := svc.ResolveAniListID(ctx, models.SchemeIMDB, "tt0000000")
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if id != 0 {
			t.Fatalf("expected no mapping, got %d", id)
		}
	}
	if got := upstream.count("/ids"); got != 1 {
		t.Fatalf("expected one cross-reference call for a repeated miss, got %d", got)
	}
}

func TestResolveAniListIDPrefersDurableStore(t *testing.T) {
	svc, store, upstream := newTestService(t, nil, nil)
	ctx := context.Background()

	if err := store.Upsert(ctx, 101, models.SchemeMAL, "202"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	id, err := svc.ResolveAniListID(ctx, models.SchemeMAL, "202")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != 101 {
		t.Fatalf("expected stored mapping, got %d", id)
	}
	if got := upstream.count("/ids"); got != 0 {
		t.Fatalf("stored mapping must not trigger remote lookup, got %d calls", got)
	}
}

func TestResolveExternalID(t *testing.T) {
	arm := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("source") != "anilist" || r.URL.Query().Get("id") != "101" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"anilist":101,"kitsu":7442,"thetvdb":305074}`)
	}
	svc, store, upstream := newTestService(t, nil, arm)
	ctx := context.Background()

	kitsuID, err := svc.ResolveExternalID(ctx, 101, models.SchemeKitsu)
	if err != nil {
		t.Fatalf("resolve external: %v", err)
	}
	if kitsuID != "7442" {
		t.Fatalf("expected kitsu id 7442, got %q", kitsuID)
	}

	// Every scheme from the one call was written back, so the tvdb lookup
	// is answered locally.
	tvdbID, err := svc.ResolveExternalID(ctx, 101, models.SchemeTVDB)
	if err != nil {
		t.Fatalf("resolve tvdb: %v", err)
	}
	if tvdbID != "305074" {
		t.Fatalf("expected tvdb id, got %q", tvdbID)
	}
	if got := upstream.count("/ids"); got != 1 {
		t.Fatalf("expected one cross-reference call, got %d", got)
	}

	if ids, _ := store.IDs(ctx, 101); ids.Kitsu != 7442 {
		t.Fatalf("write-back missing: %+v", ids)
	}
}

func TestResolveRejectsUnknownScheme(t *testing.T) {
	svc, _, _ := newTestService(t, nil, nil)
	if _, err := svc.ResolveAniListID(context.Background(), models.Scheme("netflix"), "1"); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
	if _, err := svc.ResolveExternalID(context.Background(), 1, models.Scheme("netflix")); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
}

func TestResolveEmptyInputsShortCircuit(t *testing.T) {
	svc, _, upstream := newTestService(t, nil, nil)

	if id, err := svc.ResolveAniListID(context.Background(), models.SchemeKitsu, ""); err != nil || id != 0 {
		t.Fatalf("empty external id should resolve to 0, got %d %v", id, err)
	}
	if v, err := svc.ResolveExternalID(context.Background(), 0, models.SchemeKitsu); err != nil || v != "" {
		t.Fatalf("zero anilist id should resolve to empty, got %q %v", v, err)
	}
	if got := upstream.count("/ids"); got != 0 {
		t.Fatalf("short circuits must not hit upstream")
	}
}
