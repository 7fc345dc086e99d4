package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ReimaoHenrique/api-mercadolivre/kit/db"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/keylock"
	"github.com/ReimaoHenrique/api-mercadolivre/kit/observability"
)

const RecordExt = ".json"

// FileRepository keeps one JSON document per external reference in a directory.
type FileRepository struct {
	dir    string
	locks  *keylock.Locker
	logger *observability.Logger
	now    func() time.Time
}

func NewFileRepository(dir string, logger *observability.Logger) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("create payments dir", "layer", "repo", "component", "payment", "repo", "FileRepository", "method", "NewFileRepository", "dir", dir, "err", err)
		return nil, errors.Join(db.ErrInternal, err)
	}
	return &FileRepository{dir: dir, locks: keylock.New(), logger: logger, now: time.Now}, nil
}

func (r *FileRepository) Dir() string { return r.dir }

// ReferenceFromPath maps a slot file name back to its external reference.
func ReferenceFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, RecordExt) || strings.HasPrefix(base, ".") {
		return "", false
	}
	ref := strings.TrimSuffix(base, RecordExt)
	if ValidateReference(ref) != nil {
		return "", false
	}
	return ref, true
}

func (r *FileRepository) path(ref string) string {
	return filepath.Join(r.dir, ref+RecordExt)
}

func (r *FileRepository) Upsert(ctx context.Context, rec *PaymentRecord) (*PaymentRecord, error) {
	if rec == nil {
		return nil, errors.Join(db.ErrInvalid, errors.New("nil record"))
	}
	ref := rec.ExternalReference
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := r.locks.Lock(ref)
	defer unlock()

	prev, err := r.read(ref)
	switch {
	case err == nil:
	case db.IsNotFound(err):
		prev = nil
	case db.IsInvalid(err):
		r.logger.Warn("overwriting malformed record", "layer", "repo", "component", "payment", "repo", "FileRepository", "method", "Upsert", "external_reference", ref, "err", err)
		prev = nil
	default:
		return nil, err
	}

	merged := Merge(prev, rec)
	var prevUpdated time.Time
	if prev != nil {
		prevUpdated = prev.DateLastUpdated
	}
	merged.DateLastUpdated = nextLastUpdated(r.now().UTC(), prevUpdated)

	if err := r.persistLocked(ref, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (r *FileRepository) Get(ctx context.Context, ref string) (*PaymentRecord, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	return r.read(ref)
}

func (r *FileRepository) ListAll(ctx context.Context) (*Listing, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		r.logger.Error("read payments dir", "layer", "repo", "component", "payment", "repo", "FileRepository", "method", "ListAll", "dir", r.dir, "err", err)
		return nil, errors.Join(db.ErrInternal, err)
	}

	out := &Listing{Records: []*PaymentRecord{}, Invalid: []InvalidSlot{}}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ref, ok := ReferenceFromPath(e.Name())
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.read(ref)
		switch {
		case err == nil:
			out.Records = append(out.Records, rec)
		case db.IsNotFound(err):
			// removed between ReadDir and read
		case db.IsInvalid(err):
			out.Invalid = append(out.Invalid, InvalidSlot{Reference: ref, Reason: err.Error()})
		default:
			return nil, err
		}
	}

	SortByLastUpdated(out.Records)
	return out, nil
}

func (r *FileRepository) Delete(ctx context.Context, ref string) (bool, error) {
	if err := ValidateReference(ref); err != nil {
		return false, err
	}
	unlock := r.locks.Lock(ref)
	defer unlock()

	err := os.Remove(r.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		r.logger.Error("remove record", "layer", "repo", "component", "payment", "repo", "FileRepository", "method", "Delete", "external_reference", ref, "err", err)
		return false, errors.Join(db.ErrInternal, err)
	}
	return true, nil
}

func (r *FileRepository) Clear(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, errors.Join(db.ErrInternal, err)
	}
	removed := 0
	for _, e := range entries {
		ref, ok := ReferenceFromPath(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		deleted, err := r.Delete(ctx, ref)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

func (r *FileRepository) Stats(ctx context.Context) (Stats, error) {
	listing, err := r.ListAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(listing.Records, r.now()), nil
}

func (r *FileRepository) read(ref string) (*PaymentRecord, error) {
	b, err := os.ReadFile(r.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		r.logger.Error("read record", "layer", "repo", "component", "payment", "repo", "FileRepository", "method", "read", "external_reference", ref, "err", err)
		return nil, errors.Join(db.ErrInternal, err)
	}
	return decodeRecord(ref, b)
}

func decodeRecord(slot string, b []byte) (*PaymentRecord, error) {
	var rec PaymentRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, errors.Join(db.ErrInvalid, fmt.Errorf("decode %s: %w", slot, err))
	}
	if err := validateStored(slot, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *FileRepository) persistLocked(ref string, rec *PaymentRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Join(db.ErrInternal, err)
	}

	tmp, err := os.CreateTemp(r.dir, ref+RecordExt+".*.tmp")
	if err != nil {
		r.logger.Error("create temp record", "layer", "repo", "component", "payment", "repo", "FileRepository", "method", "persistLocked", "external_reference", ref, "err", err)
		return errors.Join(db.ErrInternal, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Join(db.ErrInternal, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Join(db.ErrInternal, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Join(db.ErrInternal, err)
	}
	if err := os.Rename(tmpName, r.path(ref)); err != nil {
		cleanup()
		r.logger.Error("rename record", "layer", "repo", "component", "payment", "repo", "FileRepository", "method", "persistLocked", "external_reference", ref, "err", err)
		return errors.Join(db.ErrInternal, err)
	}
	return nil
}

// SortByLastUpdated orders newest first, ties broken by reference.
func SortByLastUpdated(recs []*PaymentRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.DateLastUpdated.Equal(b.DateLastUpdated) {
			return a.DateLastUpdated.After(b.DateLastUpdated)
		}
		return a.ExternalReference < b.ExternalReference
	})
}

// Ping reports whether the records directory is still usable.
func (r *FileRepository) Ping(ctx context.Context) error {
	info, err := os.Stat(r.dir)
	if err != nil {
		return errors.Join(db.ErrInternal, err)
	}
	if !info.IsDir() {
		return errors.Join(db.ErrInternal, fmt.Errorf("%s is not a directory", r.dir))
	}
	return nil
}
