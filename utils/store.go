package utils

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// SnapshotStore keeps enrollment images under the dataset directory.
type SnapshotStore struct {
	basePath string // absolute path to DATASET_PATH
}

// NewSnapshotStore creates the dataset directory if needed
func NewSnapshotStore(basePath string) (*SnapshotStore, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset path '%s': %w", basePath, err)
	}
	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory '%s': %w", absBasePath, err)
	}
	return &SnapshotStore{basePath: absBasePath}, nil
}

func (s *SnapshotStore) BasePath() string {
	return s.basePath
}

// Save writes data to filename inside the dataset directory, replacing any
// existing file atomically. It returns the path relative to the dataset root.
func (s *SnapshotStore) Save(filename string, data io.Reader) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid snapshot filename '%s'", filename)
	}
	fullSavePath := filepath.Join(s.basePath, filename)
	tmpPath := filepath.Join(s.basePath, "."+uuid.NewString()+".tmp")

	outFile, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file '%s': %w", tmpPath, err)
	}
	if _, err := io.Copy(outFile, data); err != nil {
		outFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write data to '%s': %w", tmpPath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close '%s': %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, fullSavePath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move snapshot into place at '%s': %w", fullSavePath, err)
	}

	log.Printf("utils.store: saved snapshot to %s", fullSavePath)
	return filename, nil
}

// Open returns a reader for a stored snapshot
func (s *SnapshotStore) Open(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := s.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open snapshot '%s': %w", relativePath, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat snapshot '%s': %w", relativePath, err)
	}
	return file, info, nil
}

// Delete removes a snapshot. A missing file is not an error.
func (s *SnapshotStore) Delete(relativePath string) error {
	fullPath, err := s.GetFullPath(relativePath)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete snapshot '%s': %w", relativePath, err)
	}
	if err == nil {
		log.Printf("utils.store: deleted snapshot %s", fullPath)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs security check
func (s *SnapshotStore) GetFullPath(relativePath string) (string, error) {
	cleanRelativePath := filepath.Clean(relativePath)
	absFullPath, err := filepath.Abs(filepath.Join(s.basePath, cleanRelativePath))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}
	if absFullPath != s.basePath && !strings.HasPrefix(absFullPath, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}
	return absFullPath, nil
}
