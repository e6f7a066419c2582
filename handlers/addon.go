// Package handlers implements the host-facing addon surface. Handlers always
// answer with a well-formed response shape; sync failures have no user-visible
// channel and only reach the log.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"anisync/models"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[handlers] failed to encode response: %v", err)
	}
}

// userOptions extracts and decodes the install-URL options path segment.
func userOptions(r *http.Request) (models.UserOptions, error) {
	return models.ParseUserOptions(mux.Vars(r)["options"])
}
