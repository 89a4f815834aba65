package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"melodex/internal/server/audio"
	"melodex/internal/server/database"
	"melodex/internal/server/notify"
	"melodex/internal/server/storage"

	"golang.org/x/sync/semaphore"
)

// IngestCatalog is the slice of the catalog repository the ingestor needs.
type IngestCatalog interface {
	GetByHash(ctx context.Context, hash string) (*database.Track, error)
	Insert(ctx context.Context, track *database.Track) error
}

// Normalizer decides whether an audio stream needs downconversion to the
// target quality profile and performs it.
type Normalizer interface {
	Normalize(ctx context.Context, data []byte, ext string) ([]byte, bool, error)
}

// Publisher is the notification fan-out consumed by background tasks.
type Publisher interface {
	Publish(event string, payload interface{})
}

// Message is one user-facing status line with a display category.
type Message struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}

// SubmitResult is the immediate response to an upload submission. It is
// returned once every file's task is scheduled, not once they are processed.
type SubmitResult struct {
	Success  bool      `json:"success"`
	Accepted int       `json:"-"`
	Messages []Message `json:"messages"`
}

// SubmittedFile is one file read out of the request body.
type SubmittedFile struct {
	Name string
	Data []byte
}

// uploadTask is the unit of background ingestion work for a single file.
// It is owned exclusively by the goroutine executing it.
type uploadTask struct {
	data         []byte
	originalName string
	ownerID      int64
}

// Ingestor coordinates the asynchronous ingestion pipeline:
// validate, normalize, fingerprint/dedup, store, persist, broadcast.
type Ingestor struct {
	catalog IngestCatalog
	blobs   storage.Store
	norm    Normalizer
	bus     Publisher
	sem     *semaphore.Weighted
	wg      sync.WaitGroup

	// probeDuration is swappable so pipeline tests can feed synthetic bytes.
	probeDuration func(data []byte, ext string) (int, error)
}

// NewIngestor creates an ingestion coordinator running at most workers
// tasks concurrently.
func NewIngestor(catalog IngestCatalog, blobs storage.Store, norm Normalizer, bus Publisher, workers int) *Ingestor {
	if workers < 1 {
		workers = 1
	}
	return &Ingestor{
		catalog:       catalog,
		blobs:         blobs,
		norm:          norm,
		bus:           bus,
		sem:           semaphore.NewWeighted(int64(workers)),
		probeDuration: audio.Duration,
	}
}

// Submit schedules one independent background task per non-empty file and
// returns as soon as all tasks are scheduled. With zero usable files it
// returns a failure message and schedules nothing.
func (ing *Ingestor) Submit(files []SubmittedFile, ownerID int64) SubmitResult {
	accepted := 0
	for _, file := range files {
		if file.Name == "" || len(file.Data) == 0 {
			continue
		}

		task := uploadTask{
			data:         file.Data,
			originalName: file.Name,
			ownerID:      ownerID,
		}
		ing.wg.Add(1)
		go ing.runTask(task)
		accepted++
	}

	if accepted == 0 {
		return SubmitResult{
			Success:  false,
			Messages: []Message{{Message: "No valid files selected.", Category: notify.CategoryDanger}},
		}
	}

	return SubmitResult{
		Success:  true,
		Accepted: accepted,
		Messages: []Message{{
			Message:  fmt.Sprintf("Submitted %d file(s) for background processing.", accepted),
			Category: notify.CategorySuccess,
		}},
	}
}

// Wait blocks until every scheduled task has finished. Used on shutdown.
func (ing *Ingestor) Wait() {
	ing.wg.Wait()
}

// runTask executes one file's pipeline. Every failure is isolated to this
// task: errors become a per-file notification, a panic is caught at the
// boundary, and sibling tasks never notice either.
func (ing *Ingestor) runTask(task uploadTask) {
	defer ing.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ingest task panicked", "file", task.originalName, "panic", r)
			ing.publishStatus(fmt.Sprintf("Processing failed for %s.", task.originalName), notify.CategoryDanger)
		}
	}()

	// Tasks outlive the originating request, so they run on their own
	// context rather than the request's.
	ctx := context.Background()

	if err := ing.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer ing.sem.Release(1)

	if err := ing.process(ctx, task); err != nil {
		ing.reportFailure(task.originalName, err)
	}
}

func (ing *Ingestor) process(ctx context.Context, task uploadTask) error {
	displayName, ext, err := audio.Validate(task.originalName)
	if err != nil {
		return err
	}

	data, transcoded, err := ing.norm.Normalize(ctx, task.data, ext)
	if err != nil {
		return err
	}

	duration, err := ing.probeDuration(data, ext)
	if err != nil {
		return err
	}

	// Fingerprint the normalized bytes: the same source file transcoded
	// twice must dedup against its stored form.
	hash := audio.Fingerprint(data)
	existing, err := ing.catalog.GetByHash(ctx, hash)
	if err != nil {
		return err
	}
	if existing != nil {
		ing.publishDuplicate(task.originalName)
		return nil
	}

	// Durable write first; a failure here aborts before any metadata exists.
	storedName := storage.NewStoredName(ext)
	if err := ing.blobs.Save(storedName, data); err != nil {
		return err
	}

	searchName, searchInitials := SearchFields(displayName)
	track := &database.Track{
		DisplayName:    displayName,
		SearchName:     searchName,
		SearchInitials: searchInitials,
		StoredName:     storedName,
		ContentHash:    hash,
		Duration:       duration,
		OwnerID:        &task.ownerID,
	}

	if err := ing.catalog.Insert(ctx, track); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			// Lost the commit race against a concurrent task with
			// identical content. The blob just written is now orphaned;
			// the sweeper reclaims it.
			ing.publishDuplicate(task.originalName)
			return nil
		}
		return err
	}

	slog.Info("ingested track",
		"file", task.originalName,
		"track_id", track.ID,
		"stored_name", storedName,
		"hash", hash,
		"duration_s", duration,
		"transcoded", transcoded,
	)

	ing.bus.Publish(notify.EventMusicAdded, notify.AddedPayload{NewIDs: []int64{track.ID}})
	ing.publishStatus(fmt.Sprintf("File %s uploaded successfully!", task.originalName), notify.CategorySuccess)
	return nil
}

// reportFailure classifies a pipeline error into the per-file notification
// the listener sees. Nothing here propagates further.
func (ing *Ingestor) reportFailure(originalName string, err error) {
	slog.Error("ingest task failed", "file", originalName, "error", err)

	var message string
	switch {
	case errors.Is(err, audio.ErrNameTooLong):
		message = fmt.Sprintf("Filename too long (over %d characters), skipped: %s", audio.MaxDisplayNameLength, originalName)
	case errors.Is(err, audio.ErrUnsupportedFormat):
		message = fmt.Sprintf("File %s is not a supported music format.", originalName)
	case errors.Is(err, audio.ErrCorruptAudio):
		message = fmt.Sprintf("File may be corrupt, skipped: %s", originalName)
	default:
		message = fmt.Sprintf("Processing failed for %s.", originalName)
	}
	ing.publishStatus(message, notify.CategoryDanger)
}

func (ing *Ingestor) publishDuplicate(originalName string) {
	slog.Info("skipping duplicate upload", "file", originalName)
	ing.publishStatus(fmt.Sprintf("File %s already exists, skipped.", originalName), notify.CategoryInfo)
}

func (ing *Ingestor) publishStatus(message, category string) {
	ing.bus.Publish(notify.EventUploadStatus, notify.StatusPayload{
		Message:  message,
		Category: category,
	})
}
