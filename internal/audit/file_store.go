package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ILLUVRSE/training-pipeline/internal/signer"
)

const headFile = "head.hash"

// FileStore keeps one JSON file per event plus a head.hash file holding the
// latest chain hash. File names carry a sequence number to preserve order.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(f.dir)
	return err
}

func (f *FileStore) Append(ctx context.Context, ev *Event, s signer.Signer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	files, err := f.eventFiles()
	if err != nil {
		return err
	}
	if err := seal(ev, f.readHead(), s); err != nil {
		return err
	}
	b, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	name := fmt.Sprintf("%08d_%s.json", len(files)+1, ev.ID)
	if err := os.WriteFile(filepath.Join(f.dir, name), b, 0o644); err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, headFile), []byte(ev.Hash), 0o644); err != nil {
		return fmt.Errorf("write head.hash: %w", err)
	}
	return nil
}

func (f *FileStore) Get(ctx context.Context, id string) (*Event, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*_"+id+".json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return readEvent(matches[0])
}

func (f *FileStore) ListByRun(ctx context.Context, runID string) ([]*Event, error) {
	all, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Event
	for _, ev := range all {
		if ev.RunID == runID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// List returns the whole chain in append order.
func (f *FileStore) List(ctx context.Context) ([]*Event, error) {
	files, err := f.eventFiles()
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(files))
	for _, name := range files {
		ev, err := readEvent(filepath.Join(f.dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *FileStore) eventFiles() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("read audit dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *FileStore) readHead() string {
	b, err := os.ReadFile(filepath.Join(f.dir, headFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readEvent(path string) (*Event, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &ev, nil
}
