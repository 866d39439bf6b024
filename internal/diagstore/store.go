// Package diagstore keeps the history of diagnostic runs in SQLite.
package diagstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"hyperimswitch/internal/diagnostics"
	"hyperimswitch/internal/profile"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("diagnostic run not found")

const defaultHistoryLimit = 20

// Store persists diagnostics.Report values. It satisfies
// diagnostics.Recorder.
type Store struct {
	db *sql.DB
}

// RunSummary is one row of the history listing.
type RunSummary struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Scenarios  int
	Passed     int
	Error      string
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; the runner records at most one report at a time.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores report and its scenarios atomically. Recording the same run
// twice replaces the earlier copy.
func (s *Store) Record(ctx context.Context, report diagnostics.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := report.ID.String()
	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("replace run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_ns, finished_ns, en_slot, jp_slot, target_slot, target_lang, target_name, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, report.StartedAt.UnixNano(), report.FinishedAt.UnixNano(),
		report.Slots.English, report.Slots.Japanese, report.Slots.Target,
		int64(report.Slots.TargetLang), report.Slots.TargetName, report.Error,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scenarios (run_id, ordinal, change_lang, set_default, foreground,
			jp_got_lang, jp_completed, jp_lang_pass,
			target_got_lang, target_completed, target_lang_pass, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare scenario insert: %w", err)
	}
	defer stmt.Close()

	for _, sc := range report.Scenarios {
		c := sc.Combination
		if _, err := stmt.ExecContext(ctx,
			id, sc.Index, c.ChangeCurrentLanguage, c.SetDefaultProfile, c.ForegroundLangRequest,
			int64(sc.Japanese.GotLang), sc.Japanese.Completed, sc.Japanese.LangPassed,
			int64(sc.Target.GotLang), sc.Target.Completed, sc.Target.LangPassed,
			int64(sc.Elapsed),
		); err != nil {
			return fmt.Errorf("insert scenario %d: %w", sc.Index, err)
		}
	}
	return tx.Commit()
}

// History lists the newest runs first. A non-positive limit selects 20.
func (s *Store) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.started_ns, r.finished_ns, r.error,
			COUNT(sc.ordinal),
			COALESCE(SUM(sc.jp_completed AND sc.jp_lang_pass AND sc.target_completed AND sc.target_lang_pass), 0)
		FROM runs r
		LEFT JOIN scenarios sc ON sc.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_ns DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			rawID             string
			started, finished int64
			summary           RunSummary
		)
		if err := rows.Scan(&rawID, &started, &finished, &summary.Error, &summary.Scenarios, &summary.Passed); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if summary.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", rawID, err)
		}
		summary.StartedAt = time.Unix(0, started)
		summary.FinishedAt = time.Unix(0, finished)
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Get loads one complete report.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (diagnostics.Report, error) {
	report := diagnostics.Report{ID: id}
	var (
		started, finished int64
		targetLang        int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT started_ns, finished_ns, en_slot, jp_slot, target_slot, target_lang, target_name, error
		FROM runs WHERE id = ?`, id.String()).Scan(
		&started, &finished,
		&report.Slots.English, &report.Slots.Japanese, &report.Slots.Target,
		&targetLang, &report.Slots.TargetName, &report.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return diagnostics.Report{}, ErrNotFound
	}
	if err != nil {
		return diagnostics.Report{}, fmt.Errorf("query run: %w", err)
	}
	report.StartedAt = time.Unix(0, started)
	report.FinishedAt = time.Unix(0, finished)
	report.Slots.TargetLang = profile.LangID(targetLang)

	rows, err := s.db.QueryContext(ctx, `
		SELECT ordinal, change_lang, set_default, foreground,
			jp_got_lang, jp_completed, jp_lang_pass,
			target_got_lang, target_completed, target_lang_pass, elapsed_ns
		FROM scenarios WHERE run_id = ? ORDER BY ordinal`, id.String())
	if err != nil {
		return diagnostics.Report{}, fmt.Errorf("query scenarios: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sc                diagnostics.ScenarioResult
			jpLang, targetGot int64
			elapsed           int64
		)
		if err := rows.Scan(&sc.Index,
			&sc.Combination.ChangeCurrentLanguage, &sc.Combination.SetDefaultProfile, &sc.Combination.ForegroundLangRequest,
			&jpLang, &sc.Japanese.Completed, &sc.Japanese.LangPassed,
			&targetGot, &sc.Target.Completed, &sc.Target.LangPassed,
			&elapsed,
		); err != nil {
			return diagnostics.Report{}, fmt.Errorf("scan scenario: %w", err)
		}
		sc.Japanese.Slot, sc.Japanese.WantLang, sc.Japanese.GotLang = report.Slots.Japanese, profile.LangJapanese, profile.LangID(jpLang)
		sc.Target.Slot, sc.Target.WantLang, sc.Target.GotLang = report.Slots.Target, report.Slots.TargetLang, profile.LangID(targetGot)
		sc.Elapsed = time.Duration(elapsed)
		report.Scenarios = append(report.Scenarios, sc)
	}
	return report, rows.Err()
}
