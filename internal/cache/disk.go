package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"panoptes/internal/instrument"
)

// Increment when DiskPayload changes shape.
const diskSchemaVersion uint16 = 1

// DiskStore keeps translated modules across process restarts, one msgpack
// file per fingerprint.
type DiskStore struct {
	mu  sync.RWMutex
	dir string
}

// DiskPayload is the persisted form of an Entry.
type DiskPayload struct {
	Schema      uint16
	Fingerprint []byte
	Text        string
	Functions   int
	Guards      int
	Skipped     int
	Created     int64
}

func newDiskPayload(e *Entry) *DiskPayload {
	return &DiskPayload{
		Schema:      diskSchemaVersion,
		Fingerprint: e.Fingerprint[:],
		Text:        string(e.Text),
		Functions:   e.Report.Functions,
		Guards:      e.Report.Guards,
		Skipped:     e.Report.Skipped,
		Created:     time.Now().Unix(),
	}
}

func (p *DiskPayload) report() instrument.Report {
	return instrument.Report{Functions: p.Functions, Guards: p.Guards, Skipped: p.Skipped}
}

// OpenDiskStore opens dir, or $XDG_CACHE_HOME/panoptes when dir is empty.
func OpenDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "panoptes")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the directory holding the store.
func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) pathFor(fp Fingerprint) string {
	return filepath.Join(s.dir, "modules", fp.String()+".mp")
}

// Put writes payload atomically.
func (s *DiskStore) Put(fp Fingerprint, payload *DiskPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pathFor(fp)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warningf("failed to remove temp file: %s", err)
		}
	}()

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the payload for fp into out. It reports false when absent.
func (s *DiskStore) Get(fp Fingerprint, out *DiskPayload) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.pathFor(fp))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// DropAll removes every stored module.
func (s *DiskStore) DropAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(filepath.Join(s.dir, "modules"))
}
