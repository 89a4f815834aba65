package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"melodex/internal/server/database"
	"melodex/internal/server/notify"
	"melodex/internal/server/storage"
)

// CatalogStore is the slice of the catalog repository the catalog
// service needs.
type CatalogStore interface {
	GetByID(ctx context.Context, id int64) (*database.Track, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	Search(ctx context.Context, q database.SearchQuery) ([]*database.Track, int64, error)
}

// ListParams are the raw, untrusted listing parameters from a request.
// Invalid values silently fall back to defaults.
type ListParams struct {
	Term   string
	SortBy string
	Order  string
	Type   string
	Page   int
}

// ListPage is one page of catalog results.
type ListPage struct {
	Tracks     []*database.Track
	Page       int
	PerPage    int
	Total      int64
	TotalPages int
}

// BatchDeleteResult reports the per-id outcome of a batch deletion.
type BatchDeleteResult struct {
	DeletedIDs   []int64
	FailedNames  []string
	TotalAfter   int64
	RedirectPage int
	Message      string
}

// Catalog implements the browse/search/delete operations over the library.
type Catalog struct {
	repo     CatalogStore
	blobs    storage.Store
	bus      Publisher
	pageSize int
}

// NewCatalog creates a catalog service.
func NewCatalog(repo CatalogStore, blobs storage.Store, bus Publisher, pageSize int) *Catalog {
	if pageSize < 1 {
		pageSize = 20
	}
	return &Catalog{repo: repo, blobs: blobs, bus: bus, pageSize: pageSize}
}

// PageSize returns the configured listing page size.
func (c *Catalog) PageSize() int {
	return c.pageSize
}

// sanitize maps raw listing parameters onto their valid domain.
func sanitize(p ListParams) ListParams {
	switch p.SortBy {
	case database.SortByTitle, database.SortByDuration, database.SortByUploadTime:
	default:
		p.SortBy = database.SortByUploadTime
	}
	switch p.Order {
	case database.OrderAsc, database.OrderDesc:
	default:
		p.Order = database.OrderDesc
	}
	switch p.Type {
	case "all", "flac", "mp3":
	default:
		p.Type = "all"
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

// List returns one page of the catalog. Reads are lock-free and
// read-committed: entries show up only once their ingest task commits.
func (c *Catalog) List(ctx context.Context, params ListParams) (*ListPage, error) {
	p := sanitize(params)

	tracks, total, err := c.repo.Search(ctx, database.SearchQuery{
		Term:     p.Term,
		SortBy:   p.SortBy,
		Order:    p.Order,
		Type:     p.Type,
		Page:     p.Page,
		PageSize: c.pageSize,
	})
	if err != nil {
		return nil, err
	}

	return &ListPage{
		Tracks:     tracks,
		Page:       p.Page,
		PerPage:    c.pageSize,
		Total:      total,
		TotalPages: pageCount(total, c.pageSize),
	}, nil
}

// BatchDelete removes each track independently, collecting per-id outcomes.
// A blob already missing from storage is logged and the row still removed;
// ids no longer in the catalog are skipped silently.
func (c *Catalog) BatchDelete(ctx context.Context, ids []int64, currentPage int) (*BatchDeleteResult, error) {
	countBefore, err := c.repo.Count(ctx)
	if err != nil {
		return nil, err
	}

	var deleted []int64
	var failed []string

	for _, id := range ids {
		track, err := c.repo.GetByID(ctx, id)
		if err != nil {
			continue
		}

		if _, err := c.blobs.Path(track.StoredName); err != nil {
			slog.Warn("stored file already missing, removing metadata anyway",
				"track_id", id, "stored_name", track.StoredName)
		} else if err := c.blobs.Delete(track.StoredName); err != nil {
			slog.Error("failed to delete stored file", "track_id", id, "error", err)
			failed = append(failed, track.DisplayName)
			continue
		}

		if err := c.repo.Delete(ctx, id); err != nil {
			slog.Error("failed to delete track row", "track_id", id, "error", err)
			failed = append(failed, track.DisplayName)
			continue
		}
		deleted = append(deleted, id)
	}

	totalAfter := countBefore - int64(len(deleted))
	if totalAfter < 0 {
		totalAfter = 0
	}

	if len(deleted) > 0 {
		c.bus.Publish(notify.EventRemoveItemsBatch, notify.RemovedPayload{
			MusicIDs:   deleted,
			TotalAfter: totalAfter,
		})
	}

	if currentPage < 1 {
		currentPage = 1
	}
	redirect := pageCount(totalAfter, c.pageSize)
	if currentPage < redirect {
		redirect = currentPage
	}

	result := &BatchDeleteResult{
		DeletedIDs:   deleted,
		FailedNames:  failed,
		TotalAfter:   totalAfter,
		RedirectPage: redirect,
	}
	if len(failed) == 0 {
		result.Message = fmt.Sprintf("Successfully deleted %d track(s)!", len(deleted))
	} else {
		names := failed
		suffix := ""
		if len(names) > 2 {
			names = names[:2]
			suffix = "..."
		}
		result.Message = fmt.Sprintf("Operation finished. Deleted %d, failed %d (%s%s).",
			len(deleted), len(failed), strings.Join(names, ", "), suffix)
	}
	return result, nil
}

// TrackPath resolves a stored name to its on-disk path for serving.
func (c *Catalog) TrackPath(storedName string) (string, error) {
	return c.blobs.Path(storedName)
}

// pageCount is the number of pages needed for total entries, never below 1
// so an emptied catalog still has a valid landing page.
func pageCount(total int64, pageSize int) int {
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if pages < 1 {
		pages = 1
	}
	return pages
}
