package models

// ListStatus mirrors the upstream media-list status enum.
type ListStatus string

const (
	StatusCurrent   ListStatus = "CURRENT"
	StatusPlanning  ListStatus = "PLANNING"
	StatusCompleted ListStatus = "COMPLETED"
	StatusDropped   ListStatus = "DROPPED"
	StatusPaused    ListStatus = "PAUSED"
	StatusRepeating ListStatus = "REPEATING"
)

// ListEntry is the slice of upstream list state the reconciler needs.
type ListEntry struct {
	MediaID    int
	EntryID    int
	Progress   int
	Status     ListStatus // empty when the item is not on any list
	Episodes   int        // total episode count, 0 when unknown
	SingleUnit bool       // movies and specials count as one unit
	Title      string
}

// CatalogMeta is one entry of the addon catalog response.
type CatalogMeta struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Poster      string   `json:"poster,omitempty"`
	Background  string   `json:"background,omitempty"`
	Logo        string   `json:"logo,omitempty"`
	Description string   `json:"description,omitempty"`
	ReleaseInfo string   `json:"releaseInfo,omitempty"`
	Genres      []string `json:"genres,omitempty"`
}
