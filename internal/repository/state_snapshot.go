package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// ErrCorruptState marks a snapshot that failed validation on reload. The
// caller treats the state as absent and bootstraps instead of loading a
// partial or damaged file.
var ErrCorruptState = errors.New("corrupt persisted state")

const snapshotVersion = 1

type snapshotFile struct {
	Version int                               `json:"version"`
	SavedAt time.Time                         `json:"saved_at"`
	States  map[string]models.VolatilityState `json:"states"`
}

// FileSnapshotStore persists volatility state as one JSON document, replaced
// atomically via temp-file-and-rename so a crash mid-write never leaves a
// half-written snapshot behind.
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore creates the store; parent directories are created on
// first save.
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (s *FileSnapshotStore) Save(states map[string]models.VolatilityState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	doc := snapshotFile{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		States:  states,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot, failing closed: any decode or validation problem
// returns ErrCorruptState rather than a partial map. A missing file returns
// an empty map and no error.
func (s *FileSnapshotStore) Load() (map[string]models.VolatilityState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]models.VolatilityState{}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc snapshotFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if doc.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: snapshot version %d, want %d", ErrCorruptState, doc.Version, snapshotVersion)
	}
	for asset, st := range doc.States {
		if err := validateSnapshotState(asset, st); err != nil {
			return nil, err
		}
	}
	return doc.States, nil
}

func validateSnapshotState(asset string, st models.VolatilityState) error {
	if st.Sigma2OneMin < 0 || math.IsNaN(st.Sigma2OneMin) || math.IsInf(st.Sigma2OneMin, 0) {
		return fmt.Errorf("%w: %s sigma2 %v", ErrCorruptState, asset, st.Sigma2OneMin)
	}
	if st.Lambda <= 0 || st.Lambda >= 1 {
		return fmt.Errorf("%w: %s lambda %v", ErrCorruptState, asset, st.Lambda)
	}
	return nil
}
