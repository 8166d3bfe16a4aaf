package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Tsinling0525/canvasflow/model"
)

const runIndexFile = "index.json"

// FileRunLog stores each run record as <dir>/<id>.json. index.json holds the
// ids newest first and defines the eviction order.
type FileRunLog struct {
	mu  sync.Mutex
	dir string
	cap int
}

func NewFileRunLog(dir string, limit int) (*FileRunLog, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &FileRunLog{dir: dir, cap: capacity(limit)}, nil
}

func (f *FileRunLog) Save(ctx context.Context, rec *model.RunRecord) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if err := validFileID(rec.ID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := writeJSON(f.path(rec.ID), rec); err != nil {
		return err
	}
	ids, err := f.index()
	if err != nil {
		return err
	}
	ids = append([]string{rec.ID}, without(ids, rec.ID)...)
	if len(ids) > f.cap {
		for _, old := range ids[f.cap:] {
			if err := os.Remove(f.path(old)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		ids = ids[:f.cap]
	}
	return writeJSON(filepath.Join(f.dir, runIndexFile), ids)
}

func (f *FileRunLog) List(ctx context.Context) ([]model.RunRecord, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, err := f.index()
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(ids))
	for _, id := range ids {
		var rec model.RunRecord
		if err := readJSON(f.path(id), &rec); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (f *FileRunLog) Get(ctx context.Context, id string) (*model.RunRecord, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if validFileID(id) != nil {
		return nil, ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var rec model.RunRecord
	if err := readJSON(f.path(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (f *FileRunLog) Delete(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, err := f.index()
	if err != nil {
		return err
	}
	rest := without(ids, id)
	if len(rest) == len(ids) {
		return ErrNotFound
	}
	if err := os.Remove(f.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return writeJSON(filepath.Join(f.dir, runIndexFile), rest)
}

func (f *FileRunLog) Clear(ctx context.Context) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, err := f.index()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := os.Remove(f.path(id)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return writeJSON(filepath.Join(f.dir, runIndexFile), []string{})
}

func (f *FileRunLog) path(id string) string { return filepath.Join(f.dir, id+".json") }

func (f *FileRunLog) index() ([]string, error) {
	var ids []string
	if err := readJSON(filepath.Join(f.dir, runIndexFile), &ids); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ids, nil
}

// FileWorkflows stores each workflow as <dir>/<id>.json.
type FileWorkflows struct {
	mu  sync.RWMutex
	dir string
}

func NewFileWorkflows(dir string) (*FileWorkflows, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &FileWorkflows{dir: dir}, nil
}

func (f *FileWorkflows) Save(ctx context.Context, wf *model.Workflow) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var existing model.Workflow
	if wf.ID != "" {
		if err := validFileID(string(wf.ID)); err != nil {
			return err
		}
		if err := readJSON(f.path(wf.ID), &existing); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	stamp(wf, existing.CreatedAt)
	return writeJSON(f.path(wf.ID), wf)
}

func (f *FileWorkflows) Get(ctx context.Context, id model.ID) (*model.Workflow, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if validFileID(string(id)) != nil {
		return nil, ErrNotFound
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var wf model.Workflow
	if err := readJSON(f.path(id), &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (f *FileWorkflows) List(ctx context.Context) ([]model.Workflow, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	out := []model.Workflow{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var wf model.Workflow
		if err := readJSON(filepath.Join(f.dir, e.Name()), &wf); err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	sortWorkflows(out)
	return out, nil
}

func (f *FileWorkflows) Delete(ctx context.Context, id model.ID) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if validFileID(string(id)) != nil {
		return ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (f *FileWorkflows) path(id model.ID) string { return filepath.Join(f.dir, string(id)+".json") }

// validFileID rejects ids that would escape the store directory.
func validFileID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || id+".json" == runIndexFile {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

// writeJSON replaces path atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

var (
	_ RunLog        = (*FileRunLog)(nil)
	_ WorkflowStore = (*FileWorkflows)(nil)
)
