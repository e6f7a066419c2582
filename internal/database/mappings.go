package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"anisync/models"
)

// ErrUnknownScheme is returned for schemes outside the fixed supported set.
var ErrUnknownScheme = errors.New("unknown id scheme")

// schemeColumns is the closed scheme-to-column mapping. Column names only
// ever come from this table, never from request input.
var schemeColumns = map[models.Scheme]string{
	models.SchemeKitsu: "kitsu_id",
	models.SchemeIMDB:  "imdb_id",
	models.SchemeMAL:   "mal_id",
	models.SchemeAniDB: "anidb_id",
	models.SchemeTMDB:  "themoviedb_id",
	models.SchemeTVDB:  "thetvdb_id",
}

func columnFor(scheme models.Scheme) (string, error) {
	col, ok := schemeColumns[scheme]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return col, nil
}

// MappingStore persists the canonical-id to external-id relations. One row
// per AniList id; each alternate-scheme value is unique across the table
// when present.
type MappingStore struct {
	db *sql.DB
}

// NewMappingStore wraps an opened database.
func NewMappingStore(db *sql.DB) *MappingStore {
	return &MappingStore{db: db}
}

// Lookup returns the AniList id mapped to the given external id, or 0 when
// no mapping is stored.
func (s *MappingStore) Lookup(ctx context.Context, scheme models.Scheme, externalID string) (int, error) {
	col, err := columnFor(scheme)
	if err != nil {
		return 0, err
	}

	var anilistID int
	query := fmt.Sprintf("SELECT anilist_id FROM media_mappings WHERE %s = ?", col)
	err = s.db.QueryRowContext(ctx, query, schemeValue(scheme, externalID)).Scan(&anilistID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup %s mapping: %w", scheme, err)
	}
	return anilistID, nil
}

// LookupExternal returns the stored external id for the given AniList id and
// scheme, or "" when the column is unset.
func (s *MappingStore) LookupExternal(ctx context.Context, anilistID int, scheme models.Scheme) (string, error) {
	col, err := columnFor(scheme)
	if err != nil {
		return "", err
	}

	var value sql.NullString
	query := fmt.Sprintf("SELECT CAST(%s AS TEXT) FROM media_mappings WHERE anilist_id = ?", col)
	err = s.db.QueryRowContext(ctx, query, anilistID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup external %s id: %w", scheme, err)
	}
	if !value.Valid {
		return "", nil
	}
	return value.String, nil
}

// Upsert records one scheme mapping for an AniList id. The column is written
// only when unset or different, so repeating an identical upsert is a no-op.
// A uniqueness conflict means the external id already belongs to another
// canonical id; the existing mapping wins and the conflict is only logged.
func (s *MappingStore) Upsert(ctx context.Context, anilistID int, scheme models.Scheme, externalID string) error {
	if anilistID <= 0 {
		return errors.New("anilist id is required")
	}
	col, err := columnFor(scheme)
	if err != nil {
		return err
	}
	if externalID == "" {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO media_mappings (anilist_id, %[1]s, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(anilist_id) DO UPDATE SET
			%[1]s = excluded.%[1]s,
			updated_at = excluded.updated_at
		WHERE media_mappings.%[1]s IS NULL OR media_mappings.%[1]s <> excluded.%[1]s`, col)

	_, err = s.db.ExecContext(ctx, query, anilistID, schemeValue(scheme, externalID))
	if isUniqueViolation(err) {
		log.Printf("[mappings] %s id %s already mapped to another entry, keeping existing mapping (anilist=%d)", scheme, externalID, anilistID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert %s mapping: %w", scheme, err)
	}
	return nil
}

// UpsertIDs stores every known scheme value of ids in one pass. Used when a
// single remote lookup returns mappings for several schemes at once.
func (s *MappingStore) UpsertIDs(ctx context.Context, ids models.MediaIDs) error {
	if ids.AniList <= 0 {
		return errors.New("anilist id is required")
	}
	for _, scheme := range models.Schemes {
		value := ids.Get(scheme)
		if value == "" {
			continue
		}
		if err := s.Upsert(ctx, ids.AniList, scheme, value); err != nil {
			return err
		}
	}
	return nil
}

// IDs returns every stored external id for an AniList id. The zero value is
// returned when the row does not exist.
func (s *MappingStore) IDs(ctx context.Context, anilistID int) (models.MediaIDs, error) {
	ids := models.MediaIDs{}
	row := s.db.QueryRowContext(ctx, `
		SELECT anilist_id, mal_id, kitsu_id, anidb_id, imdb_id, themoviedb_id, thetvdb_id
		FROM media_mappings WHERE anilist_id = ?`, anilistID)

	var mal, kitsu, anidb, tmdb, tvdb sql.NullInt64
	var imdb sql.NullString
	err := row.Scan(&ids.AniList, &mal, &kitsu, &anidb, &imdb, &tmdb, &tvdb)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MediaIDs{}, nil
	}
	if err != nil {
		return models.MediaIDs{}, fmt.Errorf("load mappings row: %w", err)
	}
	ids.MAL = int(mal.Int64)
	ids.Kitsu = int(kitsu.Int64)
	ids.AniDB = int(anidb.Int64)
	ids.IMDB = imdb.String
	ids.TMDB = int(tmdb.Int64)
	ids.TVDB = int(tvdb.Int64)
	return ids, nil
}

// schemeValue converts the string form to the column's native type so the
// integer columns keep integer affinity.
func schemeValue(scheme models.Scheme, externalID string) any {
	if scheme == models.SchemeIMDB {
		return externalID
	}
	if n, err := strconv.Atoi(externalID); err == nil {
		return n
	}
	return externalID
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
