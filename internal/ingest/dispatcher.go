package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pooledinv/internal/db"
	"pooledinv/internal/lock"
	"pooledinv/internal/logging"
	"pooledinv/internal/vocab"
)

// Request describes one ingest invocation.
type Request struct {
	Type   string
	DBPath string
	RawDir string
	File   string // explicit input; when empty the raw directory is scanned
	Prune  bool
	Apply  bool
	Mode   vocab.Mode
}

// Result is what Run decided and, when applied, what it wrote.
type Result struct {
	Type            string
	Inputs          []string
	Plan            Plan
	PruneCandidates []PruneCandidate
	// NeedsWrite is Apply && (Prune || len(Plan.New) > 0).
	NeedsWrite bool

	RunID    string
	LockPath string
	Pruned   *PruneSummary
	Ingested *ApplySummary
}

// Dispatcher runs the plan / prune / apply sequence for one source type.
type Dispatcher struct {
	Log       *zap.SugaredLogger
	LockPath  string // overrides lock.DefaultPath(DBPath)
	Exclusive bool   // create the lock marker with O_EXCL

	// OnPlan, when set, is called once planning is complete and before any
	// lock is taken, so callers can show the plan even if the write fails.
	OnPlan func(*Result)
}

func (dp *Dispatcher) log() *zap.SugaredLogger { return logging.OrNop(dp.Log) }

func checkDB(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s\nCreate it first with: pooledinv init", ErrDatabaseMissing, path)
		}
		return fmt.Errorf("checking database %s: %w", path, err)
	}
	return nil
}

// Run executes req. Without Apply nothing is written and no lock is taken.
// With Apply the lock is held across prune and ingest and released on every
// path. A lock conflict returns the *lock.LockedError unchanged.
func (dp *Dispatcher) Run(ctx context.Context, req Request) (*Result, error) {
	if err := checkDB(req.DBPath); err != nil {
		return nil, err
	}

	ing, err := New(req.Type, Options{Mode: req.Mode, Log: dp.Log})
	if err != nil {
		return nil, err
	}

	var inputs []string
	if req.File != "" {
		inputs = []string{req.File}
	} else {
		inputs, err = ing.Scan(req.RawDir)
		if err != nil {
			return nil, err
		}
	}

	d, err := db.OpenDB(req.DBPath)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	res := &Result{Type: req.Type, Inputs: inputs}
	res.Plan, err = ing.Plan(ctx, d, req.RawDir, inputs)
	if err != nil {
		return res, err
	}
	if req.Prune {
		res.PruneCandidates, err = ing.PrunePreview(ctx, d, req.RawDir)
		if err != nil {
			return res, err
		}
	}
	res.NeedsWrite = req.Apply && (req.Prune || len(res.Plan.New) > 0)
	dp.log().Debugw("plan ready", "type", req.Type, "inputs", len(inputs),
		"new", len(res.Plan.New), "already", res.Plan.AlreadyIngested,
		"prune_candidates", len(res.PruneCandidates), "needs_write", res.NeedsWrite)

	if dp.OnPlan != nil {
		dp.OnPlan(res)
	}
	if !res.NeedsWrite {
		return res, nil
	}

	res.RunID = uuid.NewString()
	var bits []string
	if req.Prune {
		bits = append(bits, "prune "+req.Type)
	}
	if len(res.Plan.New) > 0 {
		bits = append(bits, "ingest "+req.Type)
	}
	purpose := strings.Join(bits, "; ")
	h, err := dp.acquire(req.DBPath, purpose, res.RunID)
	if err != nil {
		return res, err
	}
	defer dp.release(h)
	res.LockPath = h.Path

	if req.Prune {
		started := db.UTCNow()
		summary, err := ing.PruneApply(ctx, d, req.RawDir)
		res.Pruned = &summary
		entry := db.IngestLogEntry{
			RunID:          &res.RunID,
			DataSourceType: &req.Type,
			Action:         db.Ptr(db.ActionPrune),
			StartedUTC:     &started,
			FinishedUTC:    db.Ptr(db.UTCNow()),
			RowsDeleted:    db.Ptr(summary.RowsDeleted()),
		}
		if err != nil {
			entry.Status, entry.Message = db.Ptr(db.StatusFailed), db.Ptr(err.Error())
			dp.record(ctx, d, entry)
			return res, err
		}
		msg := fmt.Sprintf("pruned %d source(s), %d observation(s)", summary.SourcesDeleted, summary.ObservationsDeleted)
		if summary.Note != "" {
			msg = summary.Note
		}
		entry.Status, entry.Message = db.Ptr(db.StatusSuccess), &msg
		dp.record(ctx, d, entry)
	}

	if len(res.Plan.New) > 0 {
		started := db.UTCNow()
		summary, err := ing.Apply(ctx, d, req.RawDir, res.Plan.New)
		res.Ingested = &summary
		for _, f := range summary.Files {
			if f.Skipped != "" {
				continue
			}
			dp.record(ctx, d, db.IngestLogEntry{
				RunID:          &res.RunID,
				SourceID:       db.Ptr(f.SourceID),
				DataSourceType: &req.Type,
				Action:         db.Ptr(db.ActionIngest),
				Status:         db.Ptr(db.StatusSuccess),
				Message:        ingestMessage(summary, f),
				FilePath:       db.Ptr(f.Path),
				FileName:       db.Ptr(filepath.Base(f.Path)),
				StartedUTC:     &started,
				FinishedUTC:    db.Ptr(db.UTCNow()),
				RowsInserted:   db.Ptr(f.RowsInserted),
			})
		}
		if err != nil {
			dp.record(ctx, d, db.IngestLogEntry{
				RunID:          &res.RunID,
				DataSourceType: &req.Type,
				Action:         db.Ptr(db.ActionIngest),
				Status:         db.Ptr(db.StatusFailed),
				Message:        db.Ptr(err.Error()),
				StartedUTC:     &started,
				FinishedUTC:    db.Ptr(db.UTCNow()),
			})
			return res, err
		}
	}
	return res, nil
}

func ingestMessage(s ApplySummary, f FileResult) *string {
	if s.Message != "" && len(s.Files) == 1 {
		return db.Ptr(s.Message)
	}
	return db.Ptr(fmt.Sprintf("ingested %d row(s) from %s", f.RowsInserted, filepath.Base(f.Path)))
}

// Delete removes one source and its observations under the lock and logs it.
func (dp *Dispatcher) Delete(ctx context.Context, dbPath, sourceID string) (db.DeleteSummary, error) {
	if err := checkDB(dbPath); err != nil {
		return db.DeleteSummary{}, err
	}
	d, err := db.OpenDB(dbPath)
	if err != nil {
		return db.DeleteSummary{}, err
	}
	defer d.Close()

	runID := uuid.NewString()
	h, err := dp.acquire(dbPath, "delete "+sourceID, runID)
	if err != nil {
		return db.DeleteSummary{}, err
	}
	defer dp.release(h)

	started := db.UTCNow()
	summary, err := d.DeleteBySourceID(ctx, sourceID)
	entry := db.IngestLogEntry{
		RunID:       &runID,
		SourceID:    &sourceID,
		Action:      db.Ptr(db.ActionDelete),
		StartedUTC:  &started,
		FinishedUTC: db.Ptr(db.UTCNow()),
		RowsDeleted: db.Ptr(summary.SourcesDeleted + summary.ObservationsDeleted),
	}
	if err != nil {
		entry.Status, entry.Message = db.Ptr(db.StatusFailed), db.Ptr(err.Error())
	} else {
		entry.Status = db.Ptr(db.StatusSuccess)
		entry.Message = db.Ptr(fmt.Sprintf("deleted %d source(s), %d observation(s)",
			summary.SourcesDeleted, summary.ObservationsDeleted))
	}
	dp.record(ctx, d, entry)
	return summary, err
}

func (dp *Dispatcher) acquire(dbPath, purpose, runID string) (*lock.Handle, error) {
	h, err := lock.Acquire(dbPath, lock.Options{
		Path:      dp.LockPath,
		Purpose:   purpose,
		RunID:     runID,
		Exclusive: dp.Exclusive,
	})
	if err != nil {
		return nil, err
	}
	if h.Advisory {
		dp.log().Warnw("exclusive lock create unavailable; wrote advisory marker", "lock", h.Path)
	}
	dp.log().Debugw("lock acquired", "lock", h.Path, "run_id", runID, "purpose", purpose)
	return h, nil
}

func (dp *Dispatcher) release(h *lock.Handle) {
	if err := h.Release(); err != nil {
		dp.log().Warnw("failed to release lock", "lock", h.Path, "error", err)
	}
}

// record appends to ingest_log. A failed log write never fails the run.
func (dp *Dispatcher) record(ctx context.Context, d *db.DB, e db.IngestLogEntry) {
	if err := d.RecordRun(ctx, e); err != nil {
		dp.log().Warnw("could not write ingest_log entry", "error", err)
	}
}
