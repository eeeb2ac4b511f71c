package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/twoao/selfie-server-go/internal/model"
)

// MemoryStore keeps records in process memory behind an RWMutex, with a
// secondary captureCode -> username index. When a snapshot path is set, the
// full record map is written to disk after every mutation and reloaded at
// startup, so the store survives restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.Record
	byCode  map[string]string
	path    string
}

// NewMemoryStore creates a store, loading the snapshot at path when one is
// given. A missing or corrupt snapshot is logged and the store starts empty;
// it never fails construction.
func NewMemoryStore(path string) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*model.Record),
		byCode:  make(map[string]string),
		path:    path,
	}
	if path != "" {
		s.load()
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, rec *model.Record) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Username]; ok {
		return nil, ErrDuplicate
	}

	now := time.Now()
	stored := rec.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.records[stored.Username] = stored
	if stored.CaptureCode != "" {
		s.byCode[stored.CaptureCode] = stored.Username
	}
	s.persistLocked()

	return stored.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *model.Record) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[rec.Username]
	if !ok {
		return nil, nil
	}

	stored := rec.Clone()
	stored.CreatedAt = prev.CreatedAt
	stored.UpdatedAt = time.Now()

	// Old code mapping is dropped in the same critical section that the new
	// one is installed: a regenerated link invalidates the previous code
	// atomically.
	if prev.CaptureCode != stored.CaptureCode {
		delete(s.byCode, prev.CaptureCode)
	}
	s.records[stored.Username] = stored
	if stored.CaptureCode != "" {
		s.byCode[stored.CaptureCode] = stored.Username
	}
	s.persistLocked()

	return stored.Clone(), nil
}

func (s *MemoryStore) Get(ctx context.Context, username string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[username].Clone(), nil
}

func (s *MemoryStore) FindByCode(ctx context.Context, code string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	username, ok := s.byCode[code]
	if !ok {
		return nil, nil
	}
	return s.records[username].Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) Delete(ctx context.Context, username string) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.deleteLocked(username)
	if removed != nil {
		s.persistLocked()
	}
	return removed, nil
}

func (s *MemoryStore) BulkDelete(ctx context.Context, usernames []string) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []model.Record
	for _, username := range usernames {
		if rec := s.deleteLocked(username); rec != nil {
			removed = append(removed, *rec)
		}
	}
	if len(removed) > 0 {
		s.persistLocked()
	}
	return removed, nil
}

func (s *MemoryStore) SweepExpired(ctx context.Context, maxAge time.Duration, now time.Time) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []model.Record
	for username, rec := range s.records {
		if now.Sub(rec.UpdatedAt) > maxAge {
			if swept := s.deleteLocked(username); swept != nil {
				removed = append(removed, *swept)
			}
		}
	}
	if len(removed) > 0 {
		s.persistLocked()
	}
	return removed, nil
}

// deleteLocked is the single removal path; it keeps the code index
// consistent for user-triggered deletes and background sweeps alike.
func (s *MemoryStore) deleteLocked(username string) *model.Record {
	rec, ok := s.records[username]
	if !ok {
		return nil
	}
	delete(s.records, username)
	delete(s.byCode, rec.CaptureCode)
	return rec.Clone()
}

// Snapshot persistence. The snapshot is a flat username -> record document;
// the code index is rebuilt on load. The wire JSON of model.Record hides the
// secret and upstream payload, so the snapshot gets its own shape that keeps
// every field.

type snapshotRecord struct {
	Record        *model.Record `json:"record"`
	Secret        string        `json:"secret"`
	UpstreamError string        `json:"upstreamError,omitempty"`
}

func (s *MemoryStore) persistLocked() {
	if s.path == "" {
		return
	}

	snapshot := make(map[string]snapshotRecord, len(s.records))
	for username, rec := range s.records {
		snapshot[username] = snapshotRecord{
			Record:        rec,
			Secret:        rec.Secret,
			UpstreamError: rec.UpstreamError,
		}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("snapshot marshal failed, continuing in-memory only")
		return
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("snapshot dir create failed, continuing in-memory only")
		return
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("snapshot write failed, continuing in-memory only")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("snapshot rename failed, continuing in-memory only")
	}
}

func (s *MemoryStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("path", s.path).Msg("snapshot read failed, starting empty")
		}
		return
	}

	var snapshot map[string]snapshotRecord
	if err := json.Unmarshal(data, &snapshot); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("snapshot corrupt, starting empty")
		return
	}

	for username, entry := range snapshot {
		rec := entry.Record
		if rec == nil || rec.Username != username {
			log.Warn().Str("username", username).Msg("snapshot entry inconsistent, skipping")
			continue
		}
		rec.Secret = entry.Secret
		rec.UpstreamError = entry.UpstreamError
		s.records[username] = rec
		if rec.CaptureCode != "" {
			s.byCode[rec.CaptureCode] = username
		}
	}
	log.Info().Int("records", len(s.records)).Str("path", s.path).Msg("snapshot loaded")
}

// Persist forces a snapshot write outside the usual mutation path, e.g. on
// shutdown.
func (s *MemoryStore) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return fmt.Errorf("no snapshot path configured")
	}
	s.persistLocked()
	return nil
}

var _ RecordStore = (*MemoryStore)(nil)
