package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"anisync/handlers"
)

// NewRouter builds the addon's route table. The {options} segment is the
// per-install configuration blob; handlers decode it per request.
func NewRouter(manifestH *handlers.ManifestHandler, catalogH *handlers.CatalogHandler, subtitlesH *handlers.SubtitlesHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Bare manifest lets hosts preview the addon before configuring it.
	r.HandleFunc("/manifest.json", manifestH.Get).Methods(http.MethodGet)
	r.HandleFunc("/{options}/manifest.json", manifestH.Get).Methods(http.MethodGet)

	r.HandleFunc("/{options}/catalog/{type}/{id}.json", catalogH.Get).Methods(http.MethodGet)

	// Subtitle requests double as watch-event signals; the extra segment
	// (videoHash etc.) is ignored.
	r.HandleFunc("/{options}/subtitles/{type}/{id}.json", subtitlesH.Get).Methods(http.MethodGet)
	r.HandleFunc("/{options}/subtitles/{type}/{id}/{extra}.json", subtitlesH.Get).Methods(http.MethodGet)

	return r
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[http] %s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}
