package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"netcheck/pkg/logx"
	"netcheck/pkg/speedtest"
)

// fileStore keeps the whole history in one JSON array.
//
// Every write goes to <path>.tmp and is renamed over the original, so a
// crash mid-write leaves the previous history intact.
type fileStore struct {
	path string
	max  int
	log  logx.Logger

	mu sync.Mutex
}

// historyRecord is a stored entry: the result fields plus bookkeeping.
type historyRecord struct {
	V  int    `json:"v,omitempty"`
	ID string `json:"id,omitempty"`
	speedtest.Result
}

// UnmarshalJSON keeps v/id; without it the embedded Result's decoder would
// be promoted and drop them.
func (h *historyRecord) UnmarshalJSON(b []byte) error {
	var meta struct {
		V  int    `json:"v"`
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return err
	}
	var r speedtest.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*h = historyRecord{V: meta.V, ID: meta.ID, Result: r}
	return nil
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{path: path, max: cfg.MaxRecords, log: log}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) ([]speedtest.Result, error) {
	_ = ctx
	s.mu.Lock()
	recs := s.readLocked()
	s.mu.Unlock()

	out := make([]speedtest.Result, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Result)
	}
	return out, nil
}

func (s *fileStore) Latest(ctx context.Context) (speedtest.Result, bool, error) {
	hist, err := s.Load(ctx)
	if err != nil {
		return speedtest.Result{}, false, err
	}
	r, ok := speedtest.Latest(hist)
	return r, ok, nil
}

func (s *fileStore) Append(ctx context.Context, r speedtest.Result) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.readLocked()
	recs = speedtest.KeepNewest(recs, historyRecord{V: schemaVersion, ID: uuid.NewString(), Result: r}, s.max)
	return s.writeLocked(recs)
}

func (s *fileStore) Clear(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked([]historyRecord{})
}

// readLocked never fails: a missing file is an empty history and unreadable
// content is logged and treated the same way.
func (s *fileStore) readLocked() []historyRecord {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []historyRecord{}
	}
	if err != nil {
		s.log.Warn("history unreadable; treating as empty", logx.String("path", s.path), logx.Err(err))
		return []historyRecord{}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []historyRecord{}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn("history malformed; treating as empty", logx.String("path", s.path), logx.Err(err))
		return []historyRecord{}
	}
	recs := make([]historyRecord, 0, len(raw))
	for i, item := range raw {
		var h historyRecord
		if err := json.Unmarshal(item, &h); err != nil {
			s.log.Warn("skipping malformed history entry", logx.Int("index", i), logx.Err(err))
			continue
		}
		recs = append(recs, h)
	}
	return recs
}

func (s *fileStore) writeLocked(recs []historyRecord) error {
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
