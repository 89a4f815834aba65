package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrTrackNotFound = errors.New("track not found")

	// ErrDuplicate is returned when an insert collides with the content_hash
	// (or stored_name) uniqueness constraint. Callers treat this as a
	// duplicate outcome, not a failure: two concurrent uploads of identical
	// bytes can both pass the fingerprint pre-check and race to commit.
	ErrDuplicate = errors.New("duplicate track")
)

// Valid sort fields and orders for Search. Anything else falls back to the
// zero-value default handled by the service layer.
const (
	SortByTitle      = "title"
	SortByDuration   = "duration"
	SortByUploadTime = "upload_time"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

var sortColumns = map[string]string{
	SortByTitle:      "search_name",
	SortByDuration:   "duration",
	SortByUploadTime: "uploaded_at",
}

// SearchQuery describes one catalog listing request.
type SearchQuery struct {
	Term     string // substring match across display/search/initials
	SortBy   string
	Order    string
	Type     string // "all", "flac" or "mp3"
	Page     int    // 1-based
	PageSize int
}

// CatalogRepository provides CRUD and search over catalog tracks.
type CatalogRepository struct {
	db *DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db *DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Insert persists a new track and fills in its generated ID and upload time.
// A uniqueness violation is reported as ErrDuplicate.
func (r *CatalogRepository) Insert(ctx context.Context, track *Track) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO tracks (
			display_name, search_name, search_initials,
			stored_name, content_hash, duration, owner_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, uploaded_at
	`,
		track.DisplayName,
		track.SearchName,
		track.SearchInitials,
		track.StoredName,
		track.ContentHash,
		track.Duration,
		track.OwnerID,
	).Scan(&track.ID, &track.UploadedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// GetByID retrieves a track by its ID.
func (r *CatalogRepository) GetByID(ctx context.Context, id int64) (*Track, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectColumns+" FROM tracks WHERE id = $1", id))
}

// GetByHash retrieves the track with a matching content fingerprint,
// or (nil, nil) when no duplicate exists.
func (r *CatalogRepository) GetByHash(ctx context.Context, hash string) (*Track, error) {
	track, err := r.scanOne(r.db.Pool.QueryRow(ctx, selectColumns+" FROM tracks WHERE content_hash = $1", hash))
	if errors.Is(err, ErrTrackNotFound) {
		return nil, nil
	}
	return track, err
}

// GetByStoredName retrieves a track by its storage name.
func (r *CatalogRepository) GetByStoredName(ctx context.Context, storedName string) (*Track, error) {
	return r.scanOne(r.db.Pool.QueryRow(ctx, selectColumns+" FROM tracks WHERE stored_name = $1", storedName))
}

// Delete removes a track row by ID.
func (r *CatalogRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM tracks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// Count returns the total number of catalog tracks.
func (r *CatalogRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM tracks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

// Search returns one page of tracks matching the query, plus the total match
// count before pagination. Reads are plain read-committed queries; a caller
// holds no lock and sees entries only once their ingest task has committed.
func (r *CatalogRepository) Search(ctx context.Context, q SearchQuery) ([]*Track, int64, error) {
	where := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)

	switch q.Type {
	case "flac", "mp3":
		args = append(args, "%."+q.Type)
		where = append(where, fmt.Sprintf("stored_name ILIKE $%d", len(args)))
	}

	if q.Term != "" {
		args = append(args, "%"+q.Term+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(display_name ILIKE $%d OR search_name ILIKE $%d OR search_initials ILIKE $%d)", n, n, n))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM tracks"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = "uploaded_at"
	}
	direction := "DESC"
	if q.Order == OrderAsc {
		direction = "ASC"
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	args = append(args, q.PageSize, (page-1)*q.PageSize)
	query := fmt.Sprintf("%s FROM tracks%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
		selectColumns, whereClause, column, direction, direction, len(args)-1, len(args))

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*Track
	for rows.Next() {
		track := &Track{}
		if err := rows.Scan(
			&track.ID,
			&track.DisplayName,
			&track.SearchName,
			&track.SearchInitials,
			&track.StoredName,
			&track.ContentHash,
			&track.Duration,
			&track.UploadedAt,
			&track.OwnerID,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, total, rows.Err()
}

// StoredNames returns every stored_name in the catalog. Used by the orphan
// sweeper to reconcile blobs on disk against committed metadata.
func (r *CatalogRepository) StoredNames(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.Pool.Query(ctx, "SELECT stored_name FROM tracks")
	if err != nil {
		return nil, fmt.Errorf("failed to list stored names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan stored name: %w", err)
		}
		names[name] = true
	}
	return names, rows.Err()
}

const selectColumns = `
	SELECT id, display_name, search_name, search_initials,
	       stored_name, content_hash, duration, uploaded_at, owner_id`

func (r *CatalogRepository) scanOne(row pgx.Row) (*Track, error) {
	track := &Track{}
	err := row.Scan(
		&track.ID,
		&track.DisplayName,
		&track.SearchName,
		&track.SearchInitials,
		&track.StoredName,
		&track.ContentHash,
		&track.Duration,
		&track.UploadedAt,
		&track.OwnerID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return track, nil
}
