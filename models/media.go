package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Scheme identifies an external identifier namespace for a media work.
type Scheme string

const (
	SchemeKitsu Scheme = "kitsu"
	SchemeIMDB  Scheme = "imdb"
	SchemeMAL   Scheme = "myanimelist"
	SchemeAniDB Scheme = "anidb"
	SchemeTMDB  Scheme = "themoviedb"
	SchemeTVDB  Scheme = "thetvdb"
)

// Schemes lists every supported alternate scheme in a stable order.
var Schemes = []Scheme{SchemeKitsu, SchemeIMDB, SchemeMAL, SchemeAniDB, SchemeTMDB, SchemeTVDB}

// Valid reports whether s is one of the supported schemes.
func (s Scheme) Valid() bool {
	switch s {
	case SchemeKitsu, SchemeIMDB, SchemeMAL, SchemeAniDB, SchemeTMDB, SchemeTVDB:
		return true
	}
	return false
}

// MediaIDs collects the external identifiers known for one AniList work.
// Zero values mean "unknown".
type MediaIDs struct {
	AniList int    `json:"anilist,omitempty"`
	MAL     int    `json:"myanimelist,omitempty"`
	Kitsu   int    `json:"kitsu,omitempty"`
	AniDB   int    `json:"anidb,omitempty"`
	IMDB    string `json:"imdb,omitempty"`
	TMDB    int    `json:"themoviedb,omitempty"`
	TVDB    int    `json:"thetvdb,omitempty"`
}

// Get returns the identifier for the given scheme as a string, or "" when unknown.
func (m MediaIDs) Get(scheme Scheme) string {
	switch scheme {
	case SchemeKitsu:
		return intID(m.Kitsu)
	case SchemeIMDB:
		return m.IMDB
	case SchemeMAL:
		return intID(m.MAL)
	case SchemeAniDB:
		return intID(m.AniDB)
	case SchemeTMDB:
		return intID(m.TMDB)
	case SchemeTVDB:
		return intID(m.TVDB)
	}
	return ""
}

func intID(v int) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// WatchEvent is one observed "episode watched" signal, fully typed at the
// handler boundary. Composite ids like "kitsu:123:5" never reach the core.
type WatchEvent struct {
	AniListID      int // non-zero when the inbound id is already canonical
	Scheme         Scheme
	ExternalID     string
	MediaType      string // "movie" or "series"
	Season         int    // 0 when the scheme does not encode seasons
	Episode        int
	TitleFallback  string // optional, used for name-based search fallback
	SearchFallback bool   // allow title search when no id mapping exists
	ListedOnly     bool   // only update items already on the user's list
	Token          string // upstream credential for this request
}

// UserOptions are the per-install flags encoded into the addon URL.
// They arrive with every request; nothing user-specific is read from
// server configuration.
type UserOptions struct {
	Token          string `json:"token"`
	SearchFallback bool   `json:"searchFallback"`
	ListedOnly     bool   `json:"listedOnly"`
}

// ErrNoToken indicates the install URL carried no upstream credential.
var ErrNoToken = errors.New("user options missing token")

// ParseUserOptions decodes the base64url options segment of an addon URL.
func ParseUserOptions(encoded string) (UserOptions, error) {
	var opts UserOptions
	if strings.TrimSpace(encoded) == "" {
		return opts, ErrNoToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// Tolerate padded or standard-alphabet encodings from older installs.
		raw, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			raw, err = base64.StdEncoding.DecodeString(encoded)
		}
	}
	if err != nil {
		return opts, fmt.Errorf("decode user options: %w", err)
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("parse user options: %w", err)
	}
	if strings.TrimSpace(opts.Token) == "" {
		return opts, ErrNoToken
	}
	return opts, nil
}

// Encode serializes the options back into the URL form (used by tests and
// install-link generation).
func (o UserOptions) Encode() string {
	raw, _ := json.Marshal(o)
	return base64.RawURLEncoding.EncodeToString(raw)
}
