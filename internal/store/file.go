package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/processing"
)

const (
	metaFile     = "meta.json"
	snapshotsDir = "snapshots"
	diffsDir     = "diffs"
	jsonExt      = ".json"
)

type rootMeta struct {
	Root string `json:"root"`
}

// FileStore keeps one JSON artifact per (root, date) under dir:
//
//	<dir>/<root key>/meta.json
//	<dir>/<root key>/snapshots/<date>.json
//	<dir>/<root key>/diffs/<date>.json
//
// Files are replaced atomically, so a failed write leaves the previous artifact intact.
type FileStore struct {
	dir string
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir, log: logger.OrDiscard(log), locks: make(map[string]*sync.Mutex)}, nil
}

// keyLock serializes writers of one artifact path.
func (s *FileStore) keyLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

func (s *FileStore) rootDir(root string) string {
	return filepath.Join(s.dir, processing.RootKey(root))
}

func (s *FileStore) snapshotPath(root, date string) string {
	return filepath.Join(s.rootDir(root), snapshotsDir, date+jsonExt)
}

func (s *FileStore) diffPath(root, date string) string {
	return filepath.Join(s.rootDir(root), diffsDir, date+jsonExt)
}

func (s *FileStore) Put(ctx context.Context, snap models.Snapshot) error {
	if err := CheckKey(snap.Root, snap.Date); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writeMeta(snap.Root); err != nil {
		return err
	}
	return s.writeJSON(s.snapshotPath(snap.Root, snap.Date), snap)
}

func (s *FileStore) Get(ctx context.Context, root, date string) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := CheckKey(root, date); err != nil {
		return snap, err
	}
	err := s.readJSON(s.snapshotPath(root, date), &snap)
	return snap, err
}

func (s *FileStore) MostRecentBefore(ctx context.Context, root, date string) (models.Snapshot, error) {
	dates, err := s.ListDates(ctx, root)
	if err != nil {
		return models.Snapshot{}, err
	}
	prev, ok := Before(dates, date)
	if !ok {
		return models.Snapshot{}, ErrNotFound
	}
	return s.Get(ctx, root, prev)
}

func (s *FileStore) Latest(ctx context.Context, root string) (models.Snapshot, error) {
	dates, err := s.ListDates(ctx, root)
	if err != nil {
		return models.Snapshot{}, err
	}
	if len(dates) == 0 {
		return models.Snapshot{}, ErrNotFound
	}
	return s.Get(ctx, root, dates[len(dates)-1])
}

func (s *FileStore) ListDates(_ context.Context, root string) ([]string, error) {
	return listDates(filepath.Join(s.rootDir(root), snapshotsDir))
}

func (s *FileStore) DeleteOlderThan(ctx context.Context, root, cutoff string) (int, error) {
	dates, err := s.ListDates(ctx, root)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, date := range Expired(dates, cutoff) {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.remove(s.snapshotPath(root, date)); err != nil {
			return deleted, err
		}
		if err := s.remove(s.diffPath(root, date)); err != nil {
			return deleted, err
		}
		deleted++
	}
	if deleted > 0 {
		s.log.Info("removed expired snapshots", slog.String("root", root), slog.Int("count", deleted))
	}
	return deleted, nil
}

func (s *FileStore) Roots(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	roots := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta rootMeta
		if err := s.readJSON(filepath.Join(s.dir, e.Name(), metaFile), &meta); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		roots = append(roots, meta.Root)
	}
	sort.Strings(roots)
	return roots, nil
}

func (s *FileStore) PutDiff(ctx context.Context, d models.Diff) error {
	if err := CheckKey(d.Root, d.CurrentDate); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writeMeta(d.Root); err != nil {
		return err
	}
	return s.writeJSON(s.diffPath(d.Root, d.CurrentDate), d)
}

func (s *FileStore) GetDiff(_ context.Context, root, date string) (models.Diff, error) {
	var d models.Diff
	if err := CheckKey(root, date); err != nil {
		return d, err
	}
	err := s.readJSON(s.diffPath(root, date), &d)
	return d, err
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) writeMeta(root string) error {
	path := filepath.Join(s.rootDir(root), metaFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return s.writeJSON(path, rootMeta{Root: root})
}

// writeJSON writes v to a temp file in the target directory and renames it into place.
func (s *FileStore) writeJSON(path string, v any) error {
	l := s.keyLock(path)
	l.Lock()
	defer l.Unlock()

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) remove(path string) error {
	l := s.keyLock(path)
	l.Lock()
	defer l.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func listDates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	dates := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, jsonExt) {
			continue
		}
		date := strings.TrimSuffix(name, jsonExt)
		if _, err := models.ParseDate(date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}
