package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Tsinling0525/canvasflow/model"
)

// runRow stores a run record as JSON. Seq gives insertion order, which is
// the eviction order.
type runRow struct {
	Seq        uint   `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"size:64;uniqueIndex"`
	WorkflowID string `gorm:"size:64;index"`
	Status     string `gorm:"size:16"`
	StartedAt  time.Time
	Data       []byte
}

func (runRow) TableName() string { return "run_records" }

type workflowRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"index"`
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (workflowRow) TableName() string { return "workflows" }

// OpenSQLite opens (creating if needed) a pure-Go SQLite database.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

// SQLStore implements RunLog and WorkflowStore on gorm.
type SQLStore struct {
	db  *gorm.DB
	cap int
}

func NewSQLStore(db *gorm.DB, limit int) (*SQLStore, error) {
	if err := db.AutoMigrate(&runRow{}, &workflowRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db, cap: capacity(limit)}, nil
}

// Runs returns the store's RunLog view.
func (s *SQLStore) Runs() RunLog { return sqlRuns{s} }

// Workflows returns the store's WorkflowStore view.
func (s *SQLStore) Workflows() WorkflowStore { return sqlWorkflows{s} }

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqlRuns struct{ s *SQLStore }

func (r sqlRuns) Save(ctx context.Context, rec *model.RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	row := runRow{
		RunID:      rec.ID,
		WorkflowID: string(rec.WorkflowID),
		Status:     string(rec.Status),
		StartedAt:  rec.StartedAt,
		Data:       data,
	}
	return r.s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", rec.ID).Delete(&runRow{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		var seqs []uint
		if err := tx.Model(&runRow{}).Order("seq DESC").Pluck("seq", &seqs).Error; err != nil {
			return err
		}
		if len(seqs) <= r.s.cap {
			return nil
		}
		return tx.Where("seq IN ?", seqs[r.s.cap:]).Delete(&runRow{}).Error
	})
}

func (r sqlRuns) List(ctx context.Context) ([]model.RunRecord, error) {
	var rows []runRow
	if err := r.s.db.WithContext(ctx).Order("seq DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(rows))
	for _, row := range rows {
		var rec model.RunRecord
		if err := json.Unmarshal(row.Data, &rec); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", row.RunID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r sqlRuns) Get(ctx context.Context, id string) (*model.RunRecord, error) {
	var row runRow
	err := r.s.db.WithContext(ctx).Where("run_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec model.RunRecord
	if err := json.Unmarshal(row.Data, &rec); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &rec, nil
}

func (r sqlRuns) Delete(ctx context.Context, id string) error {
	res := r.s.db.WithContext(ctx).Where("run_id = ?", id).Delete(&runRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r sqlRuns) Clear(ctx context.Context) error {
	return r.s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&runRow{}).Error
}

type sqlWorkflows struct{ s *SQLStore }

func (w sqlWorkflows) Save(ctx context.Context, wf *model.Workflow) error {
	db := w.s.db.WithContext(ctx)
	var created time.Time
	if wf.ID != "" {
		var existing workflowRow
		err := db.Where("id = ?", string(wf.ID)).First(&existing).Error
		switch {
		case err == nil:
			created = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	}
	stamp(wf, created)
	data, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	row := workflowRow{ID: string(wf.ID), Name: wf.Name, Data: data, CreatedAt: wf.CreatedAt, UpdatedAt: wf.UpdatedAt}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "data", "updated_at"}),
	}).Create(&row).Error
}

func (w sqlWorkflows) Get(ctx context.Context, id model.ID) (*model.Workflow, error) {
	var row workflowRow
	err := w.s.db.WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var wf model.Workflow
	if err := json.Unmarshal(row.Data, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", id, err)
	}
	return &wf, nil
}

func (w sqlWorkflows) List(ctx context.Context) ([]model.Workflow, error) {
	var rows []workflowRow
	if err := w.s.db.WithContext(ctx).Order("name, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Workflow, 0, len(rows))
	for _, row := range rows {
		var wf model.Workflow
		if err := json.Unmarshal(row.Data, &wf); err != nil {
			return nil, fmt.Errorf("decode workflow %s: %w", row.ID, err)
		}
		out = append(out, wf)
	}
	return out, nil
}

func (w sqlWorkflows) Delete(ctx context.Context, id model.ID) error {
	res := w.s.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&workflowRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var (
	_ RunLog        = sqlRuns{}
	_ WorkflowStore = sqlWorkflows{}
)
