package handlers

import (
	"net/http"

	"anisync/services/catalog"
)

const (
	addonID      = "com.anisync.addon"
	addonVersion = "1.2.0"
)

type catalogRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

type manifest struct {
	ID            string          `json:"id"`
	Version       string          `json:"version"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Resources     []string        `json:"resources"`
	Types         []string        `json:"types"`
	Catalogs      []catalogRef    `json:"catalogs"`
	IDPrefixes    []string        `json:"idPrefixes"`
	BehaviorHints map[string]bool `json:"behaviorHints"`
}

// ManifestHandler serves the addon manifest.
type ManifestHandler struct{}

func NewManifestHandler() *ManifestHandler {
	return &ManifestHandler{}
}

func (h *ManifestHandler) Get(w http.ResponseWriter, r *http.Request) {
	catalogs := []catalogRef{}
	for _, id := range catalog.Catalogs() {
		catalogs = append(catalogs, catalogRef{Type: "series", ID: id, Name: "AniList " + id})
	}

	respondJSON(w, http.StatusOK, manifest{
		ID:          addonID,
		Version:     addonVersion,
		Name:        "AniList Sync",
		Description: "Tracks watched episodes on your AniList and serves your watch list as catalogs.",
		Resources:   []string{"catalog", "subtitles"},
		Types:       []string{"series", "movie"},
		Catalogs:    catalogs,
		IDPrefixes:  []string{"kitsu:", "anilist:", "tt"},
		BehaviorHints: map[string]bool{
			"configurable":          true,
			"configurationRequired": false,
		},
	})
}
