// Package persist stores the engine's sessions on disk so they survive a
// daemon restart.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/pkg/models"
)

// SchemaVersion is written into every snapshot.
const SchemaVersion = 1

// Record is the flat, serializable form of a session. Output holds the
// previous history followed by the current process output.
type Record struct {
	models.Session
	Output []byte `json:"output,omitempty"`
}

// Snapshot is the on-disk document.
type Snapshot struct {
	Version      int       `json:"version"`
	SavedAt      time.Time `json:"saved_at"`
	Live         []Record  `json:"live"`
	Disconnected []Record  `json:"disconnected"`
	Archived     []Record  `json:"archived"`
}

// BuildFunc produces the snapshot to write. It is called when a write
// actually happens, never at scheduling time.
type BuildFunc func() *Snapshot

// Store writes snapshots atomically with debouncing. Errors are logged and
// never returned to the scheduler.
type Store struct {
	path     string
	debounce time.Duration
	logger   *logrus.Entry
	lock     *flock.Flock

	mu      sync.Mutex
	timer   *time.Timer
	pending BuildFunc

	// writeMu serializes build+write so a later build is never overwritten
	// by an earlier one.
	writeMu sync.Mutex
}

// New creates a Store for path. The parent directory must exist.
func New(path string, debounce time.Duration, logger *logrus.Entry) *Store {
	return &Store{
		path:     path,
		debounce: debounce,
		logger:   logger,
		lock:     flock.New(path + ".lock"),
	}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Schedule requests a write. Calls within one debounce window coalesce into
// a single write using the most recent build function.
func (s *Store) Schedule(build BuildFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = build
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

func (s *Store) fire() {
	s.mu.Lock()
	build := s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	if build != nil {
		s.write(build)
	}
}

// Flush synchronously writes any pending snapshot.
func (s *Store) Flush() {
	s.mu.Lock()
	build := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if build != nil {
		s.write(build)
	}
}

func (s *Store) write(build BuildFunc) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap := build()
	if snap == nil {
		return
	}
	if err := s.Save(snap); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Error("Failed to persist sessions")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"live":         len(snap.Live),
		"disconnected": len(snap.Disconnected),
		"archived":     len(snap.Archived),
	}).Debug("Persisted sessions")
}

// Save writes snap immediately.
func (s *Store) Save(snap *Snapshot) error {
	snap.Version = SchemaVersion
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	return atomicWrite(s.path, data)
}

// Load reads the snapshot. Sessions that were live when it was written come
// back as disconnected; busy or interrupted ones are flagged WasInterrupted.
// A missing or unreadable file yields an empty snapshot.
func (s *Store) Load() *Snapshot {
	empty := &Snapshot{Version: SchemaVersion}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", s.path).Error("Failed to read session store")
		}
		return empty
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Error("Session store is corrupt, starting empty")
		return empty
	}

	out := &Snapshot{Version: snap.Version, SavedAt: snap.SavedAt}
	for _, r := range append(snap.Live, snap.Disconnected...) {
		if r.State == models.StateBusy || r.State == models.StateInterrupted {
			r.WasInterrupted = true
		}
		r.State = models.StateDisconnected
		r.Location = models.LocationDisconnected
		r.WaitingInputType = ""
		out.Disconnected = append(out.Disconnected, r)
	}
	for _, r := range snap.Archived {
		r.State = models.StateArchived
		r.Location = models.LocationArchived
		r.WaitingInputType = ""
		out.Archived = append(out.Archived, r)
	}
	return out
}

// atomicWrite writes data via temp file, fsync, rename and directory fsync.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%s", filepath.Base(path), uuid.NewString()))

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true

	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}
