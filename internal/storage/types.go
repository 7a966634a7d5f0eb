package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage. Empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retention caps the number of journal rows kept by the sqlite driver.
	// 0 keeps everything.
	Retention int
}

// JournalEntry records one dispatched notification.
type JournalEntry struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Event      string    `json:"event"` // "edit" or "delete"
	ScopeID    int64     `json:"scope_id"`
	MessageID  int       `json:"message_id"`
	ScopeName  string    `json:"scope_name,omitempty"`
	SenderName string    `json:"sender_name,omitempty"`
	CacheHit   bool      `json:"cache_hit"`
	Media      string    `json:"media,omitempty"`
	Delivered  bool      `json:"delivered"`
	Path       string    `json:"path,omitempty"`
}

// Store is safe for concurrent use.
type Store interface {
	AppendJournal(ctx context.Context, e JournalEntry) error
	// RecentJournal returns up to limit entries, newest first.
	RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error)
	Close() error
}
