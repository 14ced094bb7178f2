package database

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/run"
	"github.com/kbukum/flowkit/stream"
)

type runRecord struct {
	ID          string           `gorm:"primaryKey"`
	WorkflowID  string           `gorm:"not null"`
	Status      string           `gorm:"not null"`
	Trigger     run.Trigger      `gorm:"column:trigger_spec;serializer:json"`
	Snapshot    string           `gorm:"column:snapshot"`
	Error       *run.ErrorRecord `gorm:"column:error_record;serializer:json"`
	Metrics     run.Metrics      `gorm:"serializer:json"`
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func (runRecord) TableName() string { return "flowkit_runs" }

type checkpointRecord struct {
	RunID     string `gorm:"primaryKey"`
	SourceID  string `gorm:"primaryKey"`
	Cursor    string `gorm:"not null"`
	UpdatedAt time.Time
}

func (checkpointRecord) TableName() string { return "flowkit_checkpoints" }

func fromRun(r *run.Run) runRecord {
	rec := runRecord{
		ID:         r.ID,
		WorkflowID: r.WorkflowID,
		Status:     string(r.Status),
		Trigger:    r.Trigger,
		Snapshot:   string(r.Snapshot),
		Error:      r.Error,
		Metrics:    r.Metrics,
		CreatedAt:  r.CreatedAt,
	}
	if !r.StartedAt.IsZero() {
		rec.StartedAt = &r.StartedAt
	}
	if !r.CompletedAt.IsZero() {
		rec.CompletedAt = &r.CompletedAt
	}
	return rec
}

func (rec runRecord) toRun(cps []checkpointRecord) *run.Run {
	r := &run.Run{
		ID:         rec.ID,
		WorkflowID: rec.WorkflowID,
		Status:     run.Status(rec.Status),
		Trigger:    rec.Trigger,
		Error:      rec.Error,
		Metrics:    rec.Metrics,
		CreatedAt:  rec.CreatedAt,
	}
	if rec.Snapshot != "" {
		r.Snapshot = json.RawMessage(rec.Snapshot)
	}
	if rec.StartedAt != nil {
		r.StartedAt = *rec.StartedAt
	}
	if rec.CompletedAt != nil {
		r.CompletedAt = *rec.CompletedAt
	}
	if len(cps) > 0 {
		r.Checkpoints = make(map[string]stream.Cursor, len(cps))
		for _, cp := range cps {
			r.Checkpoints[cp.SourceID] = stream.Cursor(cp.Cursor)
		}
	}
	return r
}

// RunStore is a run.Store on the flowkit_runs and flowkit_checkpoints
// tables. Apply Migrate before use.
type RunStore struct {
	db *DB
}

var _ run.Store = (*RunStore)(nil)

// NewRunStore creates a store on db.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, r *run.Run) error {
	rec := fromRun(r)
	return s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			if stderrors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.New(errors.ErrCodeAlreadyExists, "run "+r.ID+" already exists")
			}
			return FromDatabase(err, "run")
		}
		for source, cursor := range r.Checkpoints {
			if err := upsertCheckpoint(tx, r.ID, source, cursor); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *RunStore) Get(ctx context.Context, id string) (*run.Run, error) {
	var rec runRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("run", id)
		}
		return nil, FromDatabase(err, "run")
	}
	var cps []checkpointRecord
	if err := s.db.WithContext(ctx).Where("run_id = ?", id).Find(&cps).Error; err != nil {
		return nil, FromDatabase(err, "checkpoint")
	}
	return rec.toRun(cps), nil
}

func (s *RunStore) Transition(ctx context.Context, id string, tr run.Transition) error {
	return s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		var rec runRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFound("run", id)
			}
			return FromDatabase(err, "run")
		}
		r := rec.toRun(nil)
		if err := tr.Apply(r); err != nil {
			return err
		}
		next := fromRun(r)
		res := tx.Model(&runRecord{}).
			Where("id = ? AND status = ?", id, rec.Status).
			Select("status", "error_record", "metrics", "started_at", "completed_at").
			Updates(&next)
		if res.Error != nil {
			return FromDatabase(res.Error, "run")
		}
		if res.RowsAffected == 0 {
			return errors.Conflict("run " + id + " changed concurrently")
		}
		return nil
	})
}

func (s *RunStore) SaveCheckpoint(ctx context.Context, id, sourceID string, cursor stream.Cursor) error {
	return s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		var rec runRecord
		if err := tx.Select("id", "status").First(&rec, "id = ?", id).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.NotFound("run", id)
			}
			return FromDatabase(err, "run")
		}
		if err := run.SetCheckpoint(&run.Run{ID: id, Status: run.Status(rec.Status)}, sourceID, cursor); err != nil {
			return err
		}
		return upsertCheckpoint(tx, id, sourceID, cursor)
	})
}

func upsertCheckpoint(tx *gorm.DB, runID, sourceID string, cursor stream.Cursor) error {
	cp := checkpointRecord{RunID: runID, SourceID: sourceID, Cursor: string(cursor), UpdatedAt: time.Now().UTC()}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"cursor", "updated_at"}),
	}).Create(&cp).Error
	return FromDatabase(err, "checkpoint")
}

func (s *RunStore) Checkpoints(ctx context.Context, id string) (map[string]stream.Cursor, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Checkpoints, nil
}

func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Run, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if filter.WorkflowID != "" {
		q = q.Where("workflow_id = ?", filter.WorkflowID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var recs []runRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, FromDatabase(err, "run")
	}
	if len(recs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	var cps []checkpointRecord
	if err := s.db.WithContext(ctx).Where("run_id IN ?", ids).Find(&cps).Error; err != nil {
		return nil, FromDatabase(err, "checkpoint")
	}
	byRun := make(map[string][]checkpointRecord)
	for _, cp := range cps {
		byRun[cp.RunID] = append(byRun[cp.RunID], cp)
	}

	out := make([]*run.Run, len(recs))
	for i, rec := range recs {
		out[i] = rec.toRun(byRun[rec.ID])
	}
	return out, nil
}
