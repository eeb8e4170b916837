package repository

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

const startDateFile = "start_date"

// FileTuningLedger is the append-only JSONL ledger of applied parameter
// changes. Entries are only ever appended; governance replays the whole file
// to derive its state. The process start date is persisted alongside on first
// use so the first-tuning waiting period survives restarts.
type FileTuningLedger struct {
	mu   sync.Mutex
	path string
}

// NewFileTuningLedger creates the ledger at path (a .jsonl file).
func NewFileTuningLedger(path string) *FileTuningLedger {
	return &FileTuningLedger{path: path}
}

func (l *FileTuningLedger) Append(entry models.TuningHistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return f.Sync()
}

// Entries replays the full ledger. Damaged lines fail the whole read; the
// ledger is small and must be trusted end to end.
func (l *FileTuningLedger) Entries() ([]models.TuningHistoryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var entries []models.TuningHistoryEntry
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var entry models.TuningHistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("%w: ledger line %d: %v", ErrCorruptState, line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return entries, nil
}

// StartDate returns the persisted process start date, recording the current
// time on first call.
func (l *FileTuningLedger) StartDate() (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := filepath.Join(filepath.Dir(l.path), startDateFile)
	data, err := os.ReadFile(path)
	if err == nil {
		ts, parseErr := time.Parse(time.RFC3339, string(data))
		if parseErr != nil {
			return time.Time{}, fmt.Errorf("%w: start date: %v", ErrCorruptState, parseErr)
		}
		return ts, nil
	}
	if !os.IsNotExist(err) {
		return time.Time{}, fmt.Errorf("read start date: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return time.Time{}, fmt.Errorf("create ledger dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(now.Format(time.RFC3339)), 0o644); err != nil {
		return time.Time{}, fmt.Errorf("record start date: %w", err)
	}
	return now, nil
}
