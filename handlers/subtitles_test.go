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

type fakeProgressService struct {
	lastEvent models.WatchEvent
	called    bool
	err       error
}

func (f *fakeProgressService) RecordEpisode(_ context.Context, event models.WatchEvent) error {
	f.called = true
	f.lastEvent = event
	return f.err
}

func testOptions() models.UserOptions {
	return models.UserOptions{Token: "tok", SearchFallback: true}
}

func subtitlesRequest(t *testing.T, options, mediaType, id string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/sub", nil)
	return mux.SetURLVars(req, map[string]string{
		"options": options,
		"type":    mediaType,
		"id":      id,
	})
}

func TestSubtitlesAlwaysAcknowledges(t *testing.T) {
	svc := &fakeProgressService{err: errors.New("sync exploded")}
	h := NewSubtitlesHandler(svc)

	rec := httptest.NewRecorder()
	h.Get(rec, subtitlesRequest(t, testOptions().Encode(), "series", "kitsu:7442:5"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Subtitles []any `json:"subtitles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.Subtitles == nil || len(resp.Subtitles) != 0 {
		t.Fatalf("expected empty subtitles array, got %s", rec.Body.String())
	}
	if !svc.called {
		t.Fatalf("expected sync attempt despite eventual failure")
	}
}

func TestSubtitlesForwardsParsedEvent(t *testing.T) {
	svc := &fakeProgressService{}
	h := NewSubtitlesHandler(svc)

	rec := httptest.NewRecorder()
	h.Get(rec, subtitlesRequest(t, testOptions().Encode(), "series", "kitsu:7442:5"))

	if !svc.called {
		t.Fatalf("expected service call")
	}
	event := svc.lastEvent
	if event.Scheme != models.SchemeKitsu || event.ExternalID != "7442" || event.Episode != 5 {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Token != "tok" || !event.SearchFallback {
		t.Fatalf("user options not forwarded: %+v", event)
	}
}

func TestSubtitlesSkipsSyncOnBadOptions(t *testing.T) {
	svc := &fakeProgressService{}
	h := NewSubtitlesHandler(svc)

	rec := httptest.NewRecorder()
	h.Get(rec, subtitlesRequest(t, "not-base64!!!", "series", "kitsu:7442:5"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even with bad options, got %d", rec.Code)
	}
	if svc.called {
		t.Fatalf("bad options must not reach the service")
	}
}

func TestSubtitlesSkipsSyncOnBadID(t *testing.T) {
	svc := &fakeProgressService{}
	h := NewSubtitlesHandler(svc)

	rec := httptest.NewRecorder()
	h.Get(rec, subtitlesRequest(t, testOptions().Encode(), "series", "dvd|whatever"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even with bad id, got %d", rec.Code)
	}
	if svc.called {
		t.Fatalf("unparseable ids must not reach the service")
	}
}

func TestParseWatchEvent(t *testing.T) {
	opts := models.UserOptions{Token: "tok", ListedOnly: true}

	cases := []struct {
		name      string
		mediaType string
		rawID     string
		want      models.WatchEvent
		wantErr   bool
	}{
		{
			name:      "kitsu with episode",
			mediaType: "series",
			rawID:     "kitsu:7442:5",
			want:      models.WatchEvent{Scheme: models.SchemeKitsu, ExternalID: "7442", Episode: 5},
		},
		{
			name:      "kitsu movie without episode",
			mediaType: "movie",
			rawID:     "kitsu:7442",
			want:      models.WatchEvent{Scheme: models.SchemeKitsu, ExternalID: "7442", Episode: 1},
		},
		{
			name:      "imdb series with season and episode",
			mediaType: "series",
			rawID:     "tt0944947:3:9",
			want:      models.WatchEvent{Scheme: models.SchemeIMDB, ExternalID: "tt0944947", Season: 3, Episode: 9},
		},
		{
			name:      "imdb movie",
			mediaType: "movie",
			rawID:     "tt2560140",
			want:      models.WatchEvent{Scheme: models.SchemeIMDB, ExternalID: "tt2560140", Episode: 1},
		},
		{
			name:      "canonical id",
			mediaType: "series",
			rawID:     "anilist:101:2",
			want:      models.WatchEvent{AniListID: 101, Episode: 2},
		},
		{
			name:      "url escaped separator",
			mediaType: "series",
			rawID:     "kitsu%3A7442%3A5",
			want:      models.WatchEvent{Scheme: models.SchemeKitsu, ExternalID: "7442", Episode: 5},
		},
		{
			name:      "unknown prefix",
			mediaType: "series",
			rawID:     "dvd:123",
			wantErr:   true,
		},
		{
			name:      "zero episode",
			mediaType: "series",
			rawID:     "kitsu:7442:0",
			wantErr:   true,
		},
		{
			name:      "bare scheme",
			mediaType: "series",
			rawID:     "kitsu",
			wantErr:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := ParseWatchEvent(tc.mediaType, tc.rawID, opts)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", event)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			tc.want.MediaType = tc.mediaType
			tc.want.Token = opts.Token
			tc.want.ListedOnly = opts.ListedOnly
			if event != tc.want {
				t.Fatalf("event mismatch:\n got %+v\nwant %+v", event, tc.want)
			}
		})
	}
}
