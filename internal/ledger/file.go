package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore persists entries as JSON lines. Each batch is written with a
// single write followed by fsync; a failed write is truncated away so the file
// never holds a partial batch.
type FileStore struct {
	mu    sync.Mutex
	file  *os.File
	size  int64
	index *MemoryStore
}

// OpenFileStore opens or creates the ledger file at path and loads its entries.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	s := &FileStore{file: f, index: NewMemoryStore()}
	if err := s.load(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *FileStore) load() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var (
		entries []Entry
		offset  int64
	)
	reader := bufio.NewReader(s.file)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			offset += int64(len(line))
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var e Entry
				if uerr := json.Unmarshal(trimmed, &e); uerr != nil {
					return fmt.Errorf("ledger file: decode entry at offset %d: %w", offset, uerr)
				}
				entries = append(entries, e)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	// A trailing line without newline is an interrupted write; drop it.
	if err := s.file.Truncate(offset); err != nil {
		return err
	}
	s.size = offset
	s.index.load(entries)
	return nil
}

// Append implements Repository.
func (s *FileStore) Append(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := ValidateBatch(entries); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("ledger file: encode %s: %w", e.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkDuplicates(entries); err != nil {
		return err
	}
	if _, err := s.file.WriteAt(buf.Bytes(), s.size); err != nil {
		_ = s.file.Truncate(s.size)
		return fmt.Errorf("ledger file: write batch: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		_ = s.file.Truncate(s.size)
		return fmt.Errorf("ledger file: sync: %w", err)
	}
	s.size += int64(buf.Len())
	s.index.load(entries)
	return nil
}

func (s *FileStore) checkDuplicates(entries []Entry) error {
	s.index.mu.RLock()
	defer s.index.mu.RUnlock()
	for _, e := range entries {
		if _, ok := s.index.ids[e.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
	}
	return nil
}

// Query implements Repository.
func (s *FileStore) Query(ctx context.Context, start, end time.Time) ([]Entry, error) {
	return s.index.Query(ctx, start, end)
}
