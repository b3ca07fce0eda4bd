package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/common"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
)

const runsTable = "extraction_runs"

type ExtractionRunRepository interface {
	Start(ctx context.Context, run *entity.ExtractionRun) error
	FinishSuccess(ctx context.Context, runID uuid.UUID, model string, raw []byte) error
	FinishFailure(ctx context.Context, runID uuid.UUID, category constants.ErrorCategory, message string) error
	ListByBill(ctx context.Context, billID string) ([]entity.ExtractionRun, error)
}

type extractionRunRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractionRunRepository(db *DB, log *slog.Logger) ExtractionRunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractionRunRepo{db: db, log: log}
}

func (r *extractionRunRepo) Start(ctx context.Context, run *entity.ExtractionRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = string(constants.RunStatusRunning)
	run.StartedAt = now()
	q, args := r.db.sql().Insert(runsTable).
		Columns("id", "bill_id", "pass", "strategy", "quality", "contrast", "brightness", "skew", "status", "started_at").
		Values(run.ID.String(), run.BillID, run.Pass, run.Strategy, run.Quality,
			run.Contrast, run.Brightness, run.Skew, run.Status, unix(run.StartedAt)).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("extraction_run start failed", "bill_id", run.BillID, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	r.log.Info("extraction_run started", "run_id", run.ID, "bill_id", run.BillID, "pass", run.Pass, "strategy", run.Strategy)
	return nil
}

func (r *extractionRunRepo) FinishSuccess(ctx context.Context, runID uuid.UUID, model string, raw []byte) error {
	q, args := r.db.sql().Update(runsTable).
		Set("status", string(constants.RunStatusOK)).
		Set("model", model).
		Set("raw_json", string(raw)).
		Set("finished_at", unix(now())).
		Where(entsql.EQ("id", runID.String())).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("extraction_run finish(OK) failed", "run_id", runID, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	r.log.Info("extraction_run finished (OK)", "run_id", runID, "model", model)
	return nil
}

func (r *extractionRunRepo) FinishFailure(ctx context.Context, runID uuid.UUID, category constants.ErrorCategory, message string) error {
	q, args := r.db.sql().Update(runsTable).
		Set("status", string(constants.RunStatusFailed)).
		Set("error_category", string(category)).
		Set("error_message", message).
		Set("finished_at", unix(now())).
		Where(entsql.EQ("id", runID.String())).
		Query()
	if _, err := r.db.exec(ctx, q, args); err != nil {
		r.log.Error("extraction_run finish(FAILED) failed", "run_id", runID, "err", err)
		return errors.Join(common.ErrDatabase, err)
	}
	r.log.Warn("extraction_run finished (FAILED)", "run_id", runID, "category", category, "error", message)
	return nil
}

func (r *extractionRunRepo) ListByBill(ctx context.Context, billID string) ([]entity.ExtractionRun, error) {
	d := r.db.sql()
	q, args := d.Select("id", "bill_id", "pass", "strategy", "quality", "contrast", "brightness", "skew",
		"error_category", "status", "model", "error_message", "raw_json", "started_at", "finished_at").
		From(d.Table(runsTable)).
		Where(entsql.EQ("bill_id", billID)).
		OrderBy(entsql.Asc("started_at"), entsql.Asc("pass")).
		Query()
	var out []entity.ExtractionRun
	err := r.db.query(ctx, q, args, func(rows *entsql.Rows) error {
		var (
			run                  entity.ExtractionRun
			id                   string
			category, model, msg sql.NullString
			raw                  sql.NullString
			started              int64
			finished             sql.NullInt64
		)
		if err := rows.Scan(&id, &run.BillID, &run.Pass, &run.Strategy, &run.Quality, &run.Contrast, &run.Brightness, &run.Skew,
			&category, &run.Status, &model, &msg, &raw, &started, &finished); err != nil {
			return fmt.Errorf("scan extraction run: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("extraction run id %q: %w", id, err)
		}
		run.ID = parsed
		run.ErrorCategory = stringPtr(category)
		run.Model = stringPtr(model)
		run.ErrorMessage = stringPtr(msg)
		if raw.Valid && raw.String != "" {
			run.RawJSON = []byte(raw.String)
		}
		run.StartedAt = fromUnix(started)
		if finished.Valid {
			t := fromUnix(finished.Int64)
			run.FinishedAt = &t
		}
		out = append(out, run)
		return nil
	})
	if err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	return out, nil
}
