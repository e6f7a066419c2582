package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"anisync/models"
)

type fakeCatalogService struct {
	metas     []models.CatalogMeta
	err       error
	lastID    string
	lastToken string
}

func (f *fakeCatalogService) WatchList(_ context.Context, token, catalogID string) ([]models.CatalogMeta, error) {
	f.lastToken = token
	f.lastID = catalogID
	return f.metas, f.err
}

func catalogRequest(t *testing.T, options, catalogID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
	return mux.SetURLVars(req, map[string]string{
		"options": options,
		"type":    "series",
		"id":      catalogID,
	})
}

func decodeMetas(t *testing.T, rec *httptest.ResponseRecorder) []models.CatalogMeta {
	t.Helper()
	var resp struct {
		Metas []models.CatalogMeta `json:"metas"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Metas == nil {
		t.Fatalf("metas must always be an array, got %s", rec.Body.String())
	}
	return resp.Metas
}

func TestCatalogServesWatchList(t *testing.T) {
	svc := &fakeCatalogService{metas: []models.CatalogMeta{{ID: "kitsu:7442", Type: "series", Name: "Frieren"}}}
	h := NewCatalogHandler(svc)

	rec := httptest.NewRecorder()
	h.Get(rec, catalogRequest(t, testOptions().Encode(), "watching"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	metas := decodeMetas(t, rec)
	if len(metas) != 1 || metas[0].ID != "kitsu:7442" {
		t.Fatalf("unexpected metas: %+v", metas)
	}
	if svc.lastID != "watching" || svc.lastToken != "tok" {
		t.Fatalf("request not forwarded: id=%q token=%q", svc.lastID, svc.lastToken)
	}
}

func TestCatalogDegradesToEmptyOnServiceError(t *testing.T) {
	svc := &fakeCatalogService{err: errors.New("upstream down")}
	h := NewCatalogHandler(svc)

	rec := httptest.NewRecorder()
	h.Get(rec, catalogRequest(t, testOptions().Encode(), "watching"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if metas := decodeMetas(t, rec); len(metas) != 0 {
		t.Fatalf("expected empty metas, got %+v", metas)
	}
}

func TestCatalogDegradesToEmptyOnBadOptions(t *testing.T) {
	svc := &fakeCatalogService{metas: []models.CatalogMeta{{ID: "kitsu:7442"}}}
	h := NewCatalogHandler(svc)

	rec := httptest.NewRecorder()
	h.Get(rec, catalogRequest(t, "###", "watching"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if metas := decodeMetas(t, rec); len(metas) != 0 {
		t.Fatalf("expected empty metas for bad options, got %+v", metas)
	}
	if svc.lastID != "" {
		t.Fatalf("bad options must not reach the service")
	}
}

func TestManifestShape(t *testing.T) {
	h := NewManifestHandler()
	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/manifest.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var m manifest
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if m.ID != addonID || m.Version == "" {
		t.Fatalf("unexpected manifest identity: %+v", m)
	}
	if len(m.Catalogs) == 0 {
		t.Fatalf("manifest must announce catalogs")
	}
	for _, resource := range []string{"catalog", "subtitles"} {
		found := false
		for _, got := range m.Resources {
			if got == resource {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing resource %q in %v", resource, m.Resources)
		}
	}
}
