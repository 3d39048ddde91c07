package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/processing"
)

// Key prefixes. Root keys never contain '/', so prefix scans stay within one root.
const (
	rootPrefix     = "root/"
	snapshotPrefix = "snap/"
	diffPrefix     = "diff/"
)

// PebbleStore keeps snapshots and diffs in an embedded Pebble database.
type PebbleStore struct {
	db  *pebble.DB
	log *slog.Logger
}

// OpenPebble opens (or creates) a database at path. A nil fs uses the OS filesystem.
func OpenPebble(path string, fs vfs.FS, log *slog.Logger) (*PebbleStore, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &PebbleStore{db: db, log: logger.OrDiscard(log)}, nil
}

func recordKey(prefix, root, date string) []byte {
	return []byte(prefix + processing.RootKey(root) + "/" + date)
}

func rootBounds(prefix, root string) (lower, upper []byte) {
	p := prefix + processing.RootKey(root) + "/"
	lower = []byte(p)
	upper = []byte(p[:len(p)-1] + "0") // '0' sorts right after '/'
	return lower, upper
}

func (s *PebbleStore) Put(ctx context.Context, snap models.Snapshot) error {
	if err := CheckKey(snap.Root, snap.Date); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(rootPrefix+processing.RootKey(snap.Root)), []byte(snap.Root), nil); err != nil {
		return fmt.Errorf("stage root: %w", err)
	}
	if err := b.Set(recordKey(snapshotPrefix, snap.Root, snap.Date), payload, nil); err != nil {
		return fmt.Errorf("stage snapshot: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *PebbleStore) Get(_ context.Context, root, date string) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := CheckKey(root, date); err != nil {
		return snap, err
	}
	err := s.getJSON(recordKey(snapshotPrefix, root, date), &snap)
	return snap, err
}

func (s *PebbleStore) MostRecentBefore(_ context.Context, root, date string) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := CheckKey(root, date); err != nil {
		return snap, err
	}
	lower, upper := rootBounds(snapshotPrefix, root)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return snap, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	if !iter.SeekLT(recordKey(snapshotPrefix, root, date)) {
		return snap, ErrNotFound
	}
	if err := json.Unmarshal(iter.Value(), &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (s *PebbleStore) Latest(_ context.Context, root string) (models.Snapshot, error) {
	var snap models.Snapshot
	lower, upper := rootBounds(snapshotPrefix, root)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return snap, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return snap, ErrNotFound
	}
	if err := json.Unmarshal(iter.Value(), &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func (s *PebbleStore) ListDates(_ context.Context, root string) ([]string, error) {
	lower, upper := rootBounds(snapshotPrefix, root)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	dates := []string{}
	for ok := iter.First(); ok; ok = iter.Next() {
		dates = append(dates, string(iter.Key()[len(lower):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return dates, nil
}

func (s *PebbleStore) DeleteOlderThan(ctx context.Context, root, cutoff string) (int, error) {
	dates, err := s.ListDates(ctx, root)
	if err != nil {
		return 0, err
	}
	expired := Expired(dates, cutoff)
	if len(expired) == 0 {
		return 0, nil
	}

	b := s.db.NewBatch()
	defer b.Close()
	for _, date := range expired {
		if err := b.Delete(recordKey(snapshotPrefix, root, date), nil); err != nil {
			return 0, fmt.Errorf("stage delete: %w", err)
		}
		if err := b.Delete(recordKey(diffPrefix, root, date), nil); err != nil {
			return 0, fmt.Errorf("stage delete: %w", err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	s.log.Info("removed expired snapshots", slog.String("root", root), slog.Int("count", len(expired)))
	return len(expired), nil
}

func (s *PebbleStore) Roots(_ context.Context) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(rootPrefix),
		UpperBound: []byte("root0"),
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	roots := []string{}
	for ok := iter.First(); ok; ok = iter.Next() {
		roots = append(roots, string(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate roots: %w", err)
	}
	sort.Strings(roots)
	return roots, nil
}

func (s *PebbleStore) PutDiff(ctx context.Context, d models.Diff) error {
	if err := CheckKey(d.Root, d.CurrentDate); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal diff: %w", err)
	}
	if err := s.db.Set(recordKey(diffPrefix, d.Root, d.CurrentDate), payload, pebble.Sync); err != nil {
		return fmt.Errorf("write diff: %w", err)
	}
	return nil
}

func (s *PebbleStore) GetDiff(_ context.Context, root, date string) (models.Diff, error) {
	var d models.Diff
	if err := CheckKey(root, date); err != nil {
		return d, err
	}
	err := s.getJSON(recordKey(diffPrefix, root, date), &d)
	return d, err
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) getJSON(key []byte, v any) error {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
