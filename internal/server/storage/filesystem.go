package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for music blob storage backends.
// This allows swapping the filesystem for S3 or other backends later.
type Store interface {
	// Save durably writes data under storedName. The write is synced to
	// disk before Save returns: catalog metadata must never reference a
	// blob that could vanish on crash.
	Save(storedName string, data []byte) error
	Path(storedName string) (string, error)
	Delete(storedName string) error
	// List returns every stored blob name with its modification time.
	List() (map[string]time.Time, error)
	EnsureDir() error
}

// NewStoredName generates a storage name decoupled from the original
// filename: a random unique identifier plus the original extension.
func NewStoredName(ext string) string {
	return uuid.NewString() + ext
}

// FileSystemStore stores music files on the local filesystem.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Save writes data to a file named storedName and syncs it to disk.
func (fs *FileSystemStore) Save(storedName string, data []byte) error {
	filePath := fs.filePath(storedName)

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filePath, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(filePath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(filePath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(filePath)
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

// Path returns the absolute path to a stored blob.
// Returns an error if the file does not exist.
func (fs *FileSystemStore) Path(storedName string) (string, error) {
	filePath := fs.filePath(storedName)

	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found for %s", storedName)
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	return filePath, nil
}

// Delete removes a stored blob. A missing file is not an error.
func (fs *FileSystemStore) Delete(storedName string) error {
	filePath := fs.filePath(storedName)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// List returns the modification time of every blob in the store.
func (fs *FileSystemStore) List() (map[string]time.Time, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	blobs := make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		blobs[entry.Name()] = info.ModTime()
	}
	return blobs, nil
}

func (fs *FileSystemStore) filePath(storedName string) string {
	// Stored names are server-generated UUIDs; Base guards against a
	// corrupted name reaching outside the storage root.
	return filepath.Join(fs.basePath, filepath.Base(storedName))
}
