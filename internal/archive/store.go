// Package archive persists finished runs to a sqlite database so results
// from many exposures can be compared later.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/polarization.report/internal/harmonic"
	"github.com/banshee-data/polarization.report/internal/pipeline"
	"github.com/banshee-data/polarization.report/internal/roi"
	"github.com/banshee-data/polarization.report/internal/version"
)

// ErrRunNotFound means no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// startedLayout is fixed-width so started_at sorts as text.
const startedLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a run archive backed by sqlite.
type Store struct {
	db *sql.DB
}

// RunMeta identifies the inputs of a run being archived.
type RunMeta struct {
	RunID       string // generated when empty
	ExposureDir string
	EncoderPath string
	ConfigJSON  []byte
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	RunID           string
	StartedAt       time.Time
	Elapsed         time.Duration
	ExposureDir     string
	EncoderPath     string
	OffsetSeconds   float64
	OffsetManual    bool
	FramesTotal     int
	FramesMatched   int
	OutliersRemoved int
	Skips           pipeline.SkipCounts
	Version         string
}

// FitRow is one archived fit outcome.
type FitRow struct {
	Statistic roi.Statistic
	OK        bool
	Reason    string
	Intercept float64
	Terms     []harmonic.Term
	PsiDeg    *float64 // nil without a fourth harmonic
	R2        *float64 // nil when undefined
	N         int
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. Use ":memory:" only with care: every pooled connection gets
// its own database, so the pool is capped at one connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveRun writes a run, its records and its fits in one transaction and
// returns the run ID.
func (s *Store) SaveRun(ctx context.Context, meta RunMeta, res *pipeline.Result) (string, error) {
	runID := meta.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	skips, err := json.Marshal(res.Skips)
	if err != nil {
		return "", err
	}
	var config sql.NullString
	if len(meta.ConfigJSON) > 0 {
		config = sql.NullString{String: string(meta.ConfigJSON), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, started_at, elapsed_ms, exposure_dir, encoder_path,
			offset_seconds, offset_manual, frames_total, frames_matched,
			outliers_removed, skips_json, config_json, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, res.StartedAt.UTC().Format(startedLayout), res.Elapsed.Milliseconds(),
		meta.ExposureDir, meta.EncoderPath,
		res.Offset.Seconds, res.Offset.Manual, res.FramesTotal,
		len(res.Records)+res.OutliersRemoved, res.OutliersRemoved,
		string(skips), config, version.String(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frame_records (
			run_id, idx, name, capture_time, encoder_count, rotation_index, plate_angle, values_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer recStmt.Close()
	for _, rec := range res.Records {
		values, err := json.Marshal(finiteValues(rec.Values))
		if err != nil {
			return "", err
		}
		if _, err := recStmt.ExecContext(ctx, runID, rec.Index, rec.Name, rec.CaptureTime, rec.EncoderCount,
			rec.RotationIndex, rec.PlateAngle, string(values)); err != nil {
			return "", fmt.Errorf("failed to insert record %s: %w", rec.Name, err)
		}
	}

	for _, f := range res.Fits {
		if err := insertFit(ctx, tx, runID, f); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

func insertFit(ctx context.Context, tx *sql.Tx, runID string, f pipeline.FitOutcome) error {
	var (
		intercept, psi, r2 sql.NullFloat64
		terms              sql.NullString
		n                  int
	)
	if f.OK() {
		intercept = nullFloat(f.Fit.Intercept)
		r2 = nullFloat(f.Fit.R2)
		if f.Fit.HasPsi {
			psi = nullFloat(f.Fit.PsiDeg)
		}
		data, err := json.Marshal(f.Fit.Terms)
		if err != nil {
			return err
		}
		terms = sql.NullString{String: string(data), Valid: true}
		n = f.Fit.N
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO fit_results (
			run_id, statistic, ok, reason, intercept, terms_json, psi_deg, r2, n_points
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(f.Statistic), f.OK(), f.Reason(), intercept, terms, psi, r2, n,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s fit: %w", f.Statistic, err)
	}
	return nil
}

// ListRuns returns every archived run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, elapsed_ms, exposure_dir, encoder_path,
		       offset_seconds, offset_manual, frames_total, frames_matched,
		       outliers_removed, skips_json, version
		FROM runs
		ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r         RunSummary
			started   string
			elapsedMS int64
			skips     string
		)
		if err := rows.Scan(&r.RunID, &started, &elapsedMS, &r.ExposureDir, &r.EncoderPath,
			&r.OffsetSeconds, &r.OffsetManual, &r.FramesTotal, &r.FramesMatched,
			&r.OutliersRemoved, &skips, &r.Version); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(startedLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at %q: %w", r.RunID, started, err)
		}
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if err := json.Unmarshal([]byte(skips), &r.Skips); err != nil {
			return nil, fmt.Errorf("run %s: bad skips: %w", r.RunID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FitsForRun returns the fit outcomes of one run in statistic order.
func (s *Store) FitsForRun(ctx context.Context, runID string) ([]FitRow, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT statistic, ok, reason, intercept, terms_json, psi_deg, r2, n_points
		FROM fit_results
		WHERE run_id = ?
		ORDER BY statistic`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fits: %w", err)
	}
	defer rows.Close()

	var out []FitRow
	for rows.Next() {
		var (
			f                  FitRow
			stat               string
			intercept, psi, r2 sql.NullFloat64
			terms              sql.NullString
		)
		if err := rows.Scan(&stat, &f.OK, &f.Reason, &intercept, &terms, &psi, &r2, &f.N); err != nil {
			return nil, err
		}
		f.Statistic = roi.Statistic(stat)
		f.Intercept = intercept.Float64
		if psi.Valid {
			f.PsiDeg = &psi.Float64
		}
		if r2.Valid {
			f.R2 = &r2.Float64
		}
		if terms.Valid {
			if err := json.Unmarshal([]byte(terms.String), &f.Terms); err != nil {
				return nil, fmt.Errorf("bad terms for %s: %w", stat, err)
			}
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordsForRun returns the archived frame records of one run in frame
// order. ROI geometry is not archived; values that were not finite come
// back absent.
func (s *Store) RecordsForRun(ctx context.Context, runID string) ([]pipeline.FrameRecord, error) {
	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, name, capture_time, encoder_count, rotation_index, plate_angle, values_json
		FROM frame_records
		WHERE run_id = ?
		ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []pipeline.FrameRecord
	for rows.Next() {
		var (
			rec    pipeline.FrameRecord
			values string
		)
		if err := rows.Scan(&rec.Index, &rec.Name, &rec.CaptureTime, &rec.EncoderCount, &rec.RotationIndex,
			&rec.PlateAngle, &values); err != nil {
			return nil, err
		}
		var raw map[roi.Statistic]*float64
		if err := json.Unmarshal([]byte(values), &raw); err != nil {
			return nil, fmt.Errorf("record %d: bad values: %w", rec.Index, err)
		}
		rec.Values = make(map[roi.Statistic]float64, len(raw))
		for st, v := range raw {
			if v != nil {
				rec.Values[st] = *v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) requireRun(ctx context.Context, runID string) error {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// finiteValues maps non-finite values to null, which JSON cannot encode.
func finiteValues(vals map[roi.Statistic]float64) map[roi.Statistic]*float64 {
	out := make(map[roi.Statistic]*float64, len(vals))
	for st, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[st] = nil
			continue
		}
		v := v
		out[st] = &v
	}
	return out
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
