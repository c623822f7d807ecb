// Package status defines the record-level sync state machine and the per-record-type
// cycle status, together with its file persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for cycle status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the cycle status of a specific record type
	SaveStatus(ctx context.Context, recordType string, status *CycleStatus) error

	// LoadStatus loads the cycle status of a specific record type.
	// Returns an empty CycleStatus if nothing was saved yet (first run)
	LoadStatus(ctx context.Context, recordType string) (*CycleStatus, error)

	// LoadAllStatus loads cycle status for all record types
	LoadAllStatus(ctx context.Context) (map[string]*CycleStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence.
// basePath is the base directory where per-record-type status files will be stored
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus replaces the status file of a record type
func (f *fileStatusPersistence) SaveStatus(_ context.Context, recordType string, status *CycleStatus) error {
	typeDir := filepath.Join(f.basePath, recordType)
	if err := os.MkdirAll(typeDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for record type '%s': %w", recordType, err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for record type '%s': %w", recordType, err)
	}
	if err := writeFileAtomic(filepath.Join(typeDir, StatusFileName), data); err != nil {
		return fmt.Errorf("failed to write status file for record type '%s': %w", recordType, err)
	}
	return nil
}

// writeFileAtomic replaces path with data. The data is synced before the rename so a
// power cut leaves either the previous or the new file on disk.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadStatus loads the cycle status from a JSON file for a specific record type
// Returns an empty CycleStatus if the file doesn't exist
func (f *fileStatusPersistence) LoadStatus(_ context.Context, recordType string) (*CycleStatus, error) {
	filePath := filepath.Join(f.basePath, recordType, StatusFileName)

	// #nosec G304 -- filePath is built from the configured status dir and a validated record type name
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &CycleStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for record type '%s': %w", recordType, err)
	}

	var status CycleStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for record type '%s': %w", recordType, err)
	}

	return &status, nil
}

// LoadAllStatus loads cycle status for all record types found under the base path
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*CycleStatus, error) {
	result := make(map[string]*CycleStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		recordType := entry.Name()
		status, err := f.LoadStatus(ctx, recordType)
		if err != nil {
			slog.Warn("Skipping unreadable status file", "record_type", recordType, "error", err)
			continue
		}

		result[recordType] = status
	}

	return result, nil
}
