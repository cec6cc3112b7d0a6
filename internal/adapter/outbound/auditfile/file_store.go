// Package auditfile persists audit records as JSON Lines with daily rotation
// and retention cleanup. One line per record keeps the trail greppable and
// trivially shippable to a log collector.
package auditfile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/tamshai/gateway/internal/domain/audit"
)

// filePattern matches audit trail filenames: audit-YYYY-MM-DD.jsonl
var filePattern = regexp.MustCompile(`^audit-(\d{4}-\d{2}-\d{2})\.jsonl$`)

// Config holds settings for the file-based audit store.
type Config struct {
	// Dir is the directory holding the audit files.
	Dir string
	// RetentionDays is how many days of files to keep (default 30).
	RetentionDays int
}

// Store implements audit.Store on rotating JSONL files.
type Store struct {
	dir           string
	retentionDays int
	logger        *slog.Logger
	cancel        context.CancelFunc

	mu          sync.Mutex
	currentFile *os.File
	currentDate string
	closed      bool
}

// Compile-time check that Store implements audit.Store.
var _ audit.Store = (*Store)(nil)

// New opens (creating if needed) the audit directory, opens today's file,
// removes files past retention, and starts the hourly cleanup loop.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		dir:           cfg.Dir,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		cancel:        cancel,
	}

	if err := s.openFileLocked(time.Now().UTC().Format(time.DateOnly)); err != nil {
		cancel()
		return nil, err
	}
	s.cleanup()
	go s.cleanupLoop(ctx)

	return s, nil
}

// Append writes each record as one JSON line, rotating on date change.
func (s *Store) Append(records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("audit store is closed")
	}

	for _, rec := range records {
		date := rec.Timestamp.UTC().Format(time.DateOnly)
		if date != s.currentDate {
			if err := s.rotateLocked(date); err != nil {
				return fmt.Errorf("rotate audit file: %w", err)
			}
		}

		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		if _, err := s.currentFile.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write audit record: %w", err)
		}
	}
	return nil
}

// Close syncs and closes the current file and stops the cleanup loop.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()

	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		err := s.currentFile.Close()
		s.currentFile = nil
		return err
	}
	return nil
}

func (s *Store) openFileLocked(date string) error {
	path := filepath.Join(s.dir, fmt.Sprintf("audit-%s.jsonl", date))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	s.currentFile = f
	s.currentDate = date
	return nil
}

func (s *Store) rotateLocked(date string) error {
	if s.currentFile != nil {
		_ = s.currentFile.Sync()
		_ = s.currentFile.Close()
		s.currentFile = nil
	}
	return s.openFileLocked(date)
}

// cleanup deletes audit files older than the retention window.
func (s *Store) cleanup() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("audit cleanup: read directory failed", "dir", s.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	for _, e := range entries {
		m := filePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		fileDate, err := time.Parse(time.DateOnly, m[1])
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				s.logger.Error("audit cleanup: delete failed", "file", e.Name(), "error", err)
			}
		}
	}
}

func (s *Store) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}
