package repository

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/duke524-dev/synth-subnet/internal/domain/models"
)

// Sampling intervals per horizon. A record arriving inside the interval for
// its (asset, horizon) pair is dropped unless its log reason forces it.
const (
	lowLogInterval  = 30 * time.Minute
	highLogInterval = 15 * time.Minute
)

// LogReasonInterval marks a routine sampled record; any other reason (for
// example a volatility spike or an equity market event) bypasses sampling.
const LogReasonInterval = "interval"

// FilePredictionLog retains a sampled subset of generated ensembles as JSONL,
// one file per day grouped into month directories, so old partitions can be
// archived or deleted wholesale.
type FilePredictionLog struct {
	mu         sync.Mutex
	dir        string
	lastLogged map[string]time.Time
}

// NewFilePredictionLog creates the log rooted at dir.
func NewFilePredictionLog(dir string) *FilePredictionLog {
	return &FilePredictionLog{dir: dir, lastLogged: make(map[string]time.Time)}
}

// Log appends the record if the sampling window for its (asset, horizon)
// pair has elapsed, reporting whether it was written.
func (l *FilePredictionLog) Log(rec *models.PredictionRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.LoggedAt.IsZero() {
		rec.LoggedAt = time.Now().UTC()
	}
	if rec.LogReason == "" {
		rec.LogReason = LogReasonInterval
	}

	interval := lowLogInterval
	if rec.Horizon == models.HorizonHigh {
		interval = highLogInterval
	}
	key := rec.Asset + "|" + string(rec.Horizon)
	if rec.LogReason == LogReasonInterval {
		if last, ok := l.lastLogged[key]; ok && rec.LoggedAt.Sub(last) < interval {
			return false, nil
		}
	}

	path := l.partitionPath(rec.LoggedAt)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create prediction partition: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode prediction record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open prediction partition: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return false, fmt.Errorf("append prediction record: %w", err)
	}

	l.lastLogged[key] = rec.LoggedAt
	return true, nil
}

func (l *FilePredictionLog) partitionPath(ts time.Time) string {
	ts = ts.UTC()
	return filepath.Join(l.dir, ts.Format("2006-01"), "predictions_"+ts.Format("2006-01-02")+".jsonl")
}

// Records returns logged predictions with t0 inside [from, to], newest last.
// An empty asset matches everything. Unreadable lines are skipped; a partial
// partition must not block scoring the rest.
func (l *FilePredictionLog) Records(from, to time.Time, asset string) ([]*models.PredictionRecord, error) {
	var records []*models.PredictionRecord

	for _, monthDir := range monthDirs(from, to) {
		files, err := filepath.Glob(filepath.Join(l.dir, monthDir, "predictions_*.jsonl"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, file := range files {
			recs, err := readPartition(file, from, to, asset)
			if err != nil {
				return nil, err
			}
			records = append(records, recs...)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].T0.Before(records[j].T0) })
	return records, nil
}

func readPartition(path string, from, to time.Time, asset string) ([]*models.PredictionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prediction partition: %w", err)
	}
	defer f.Close()

	var records []*models.PredictionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec models.PredictionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.T0.Before(from) || rec.T0.After(to) {
			continue
		}
		if asset != "" && rec.Asset != asset {
			continue
		}
		records = append(records, &rec)
	}
	return records, scanner.Err()
}

func monthDirs(from, to time.Time) []string {
	var dirs []string
	cur := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(end) {
		dirs = append(dirs, cur.Format("2006-01"))
		cur = cur.AddDate(0, 1, 0)
	}
	return dirs
}
