package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"msgwatch/pkg/logx"
)

// recentKeep bounds the in-memory tail served by RecentJournal.
const recentKeep = 200

// fileStore appends the journal to <path> as JSON Lines and keeps the most
// recent entries in memory.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	f      *os.File
	recent []JournalEntry // oldest first, at most recentKeep
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	recent, err := loadTail(path, recentKeep)
	if err != nil && !os.IsNotExist(err) {
		log.Warn("journal replay failed", logx.String("path", path), logx.Err(err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, f: f, recent: recent}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendJournal(ctx context.Context, e JournalEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("journal file closed")
	}
	if err := json.NewEncoder(s.f).Encode(e); err != nil {
		return err
	}
	s.recent = appendBounded(s.recent, e, recentKeep)
	return nil
}

func (s *fileStore) RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.recent, limit), nil
}

func loadTail(path string, keep int) ([]JournalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []JournalEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn last line after a crash is expected.
			continue
		}
		out = appendBounded(out, e, keep)
	}
	return out, sc.Err()
}

func appendBounded(s []JournalEntry, e JournalEntry, keep int) []JournalEntry {
	s = append(s, e)
	if len(s) > keep {
		n := copy(s, s[len(s)-keep:])
		s = s[:n]
	}
	return s
}

func newestFirst(s []JournalEntry, limit int) []JournalEntry {
	if limit <= 0 || limit > len(s) {
		limit = len(s)
	}
	out := make([]JournalEntry, 0, limit)
	for i := len(s) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s[i])
	}
	return out
}
