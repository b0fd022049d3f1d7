package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	fuzz_dir TEXT NOT NULL,
	crash_dir TEXT NOT NULL,
	dd_num INTEGER NOT NULL,
	version TEXT
);

CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	crashing_input TEXT NOT NULL,
	parent_input TEXT,
	slice_linecount INTEGER NOT NULL,
	dice_linecount INTEGER NOT NULL,
	shrink_percent REAL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_run ON reports(run_id);

CREATE TABLE IF NOT EXISTS suspects (
	report_id INTEGER NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	rank INTEGER NOT NULL,
	line TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (report_id, rank)
);
CREATE INDEX IF NOT EXISTS idx_suspects_line ON suspects(line);
`

var ledgerPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// ErrUnknownRun is returned when a run id is not in the ledger.
var ErrUnknownRun = errors.New("unknown run")

// Ledger is a SQLite database collecting reports across runs.
type Ledger struct {
	db *sql.DB
}

// Run describes one batch run recorded in the ledger.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	FuzzDir    string
	CrashDir   string
	DDNum      int
	Version    string
	Reports    int
}

// SuspectRank aggregates one location over many reports.
type SuspectRank struct {
	Line    string
	Crashes int
	Hits    int
}

// OpenLedger opens or creates the ledger at path.
func OpenLedger(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	// One writer; also keeps pragmas bound to the single connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range ledgerPragmas {
		_, execErr := db.ExecContext(ctx, pragma)
		if execErr != nil {
			return nil, errors.Join(fmt.Errorf("ledger pragma: %w", execErr), db.Close())
		}
	}

	_, err = db.ExecContext(ctx, ledgerSchema)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("ledger schema: %w", err), db.Close())
	}

	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// TopSuspects ranks locations by the number of reports they appear in, then
// by their summed counts. An empty runID covers every run.
func (l *Ledger) TopSuspects(ctx context.Context, runID string, limit int) ([]SuspectRank, error) {
	query := `
		SELECT s.line, COUNT(DISTINCT s.report_id) AS crashes, SUM(s.count) AS hits
		FROM suspects s
		JOIN reports r ON r.id = s.report_id
		WHERE (? = '' OR r.run_id = ?)
		GROUP BY s.line
		ORDER BY crashes DESC, hits DESC, s.line ASC
		LIMIT ?`

	if limit <= 0 {
		limit = -1
	}

	if runID != "" {
		var n int

		err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("query run: %w", err)
		}

		if n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
		}
	}

	rows, err := l.db.QueryContext(ctx, query, runID, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("query suspects: %w", err)
	}
	defer rows.Close()

	var ranks []SuspectRank

	for rows.Next() {
		var sr SuspectRank

		scanErr := rows.Scan(&sr.Line, &sr.Crashes, &sr.Hits)
		if scanErr != nil {
			return nil, fmt.Errorf("scan suspect: %w", scanErr)
		}

		ranks = append(ranks, sr)
	}

	return ranks, rows.Err()
}

// Runs lists recorded runs, newest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, r.finished_at, r.fuzz_dir, r.crash_dir, r.dd_num, COALESCE(r.version, ''),
			(SELECT COUNT(*) FROM reports p WHERE p.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			run      Run
			started  string
			finished sql.NullString
		)

		scanErr := rows.Scan(&run.ID, &started, &finished, &run.FuzzDir, &run.CrashDir, &run.DDNum, &run.Version, &run.Reports)
		if scanErr != nil {
			return nil, fmt.Errorf("scan run: %w", scanErr)
		}

		run.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("run %s start time: %w", run.ID, err)
		}

		if finished.Valid {
			ts, parseErr := time.Parse(time.RFC3339Nano, finished.String)
			if parseErr != nil {
				return nil, fmt.Errorf("run %s finish time: %w", run.ID, parseErr)
			}

			run.FinishedAt = &ts
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LedgerSink records the reports of one run into a [Ledger].
type LedgerSink struct {
	ledger *Ledger
	runID  string
	logger *slog.Logger
	now    func() time.Time
}

// RunInfo describes the run a [LedgerSink] records.
type RunInfo struct {
	// ID of the run. Empty generates a random UUID.
	ID       string
	FuzzDir  string
	CrashDir string
	DDNum    int
	Version  string
}

// OpenLedgerSink opens the ledger at path and registers a new run.
func OpenLedgerSink(ctx context.Context, path string, info RunInfo, logger *slog.Logger) (*LedgerSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ledger, err := OpenLedger(ctx, path)
	if err != nil {
		return nil, err
	}

	if info.ID == "" {
		info.ID = uuid.NewString()
	}

	sink := &LedgerSink{ledger: ledger, runID: info.ID, logger: logger, now: time.Now}

	_, err = ledger.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, fuzz_dir, crash_dir, dd_num, version) VALUES (?, ?, ?, ?, ?, ?)`,
		info.ID, sink.timestamp(), info.FuzzDir, info.CrashDir, info.DDNum, info.Version)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("register run: %w", err), ledger.Close())
	}

	logger.DebugContext(ctx, "ledger run registered", "path", path, "run_id", info.ID)

	return sink, nil
}

// RunID returns the id the reports are recorded under.
func (s *LedgerSink) RunID() string {
	return s.runID
}

// Ledger returns the underlying ledger.
func (s *LedgerSink) Ledger() *Ledger {
	return s.ledger
}

// Write implements [Sink]. The report and its suspects are inserted in one
// transaction.
func (s *LedgerSink) Write(ctx context.Context, r *dice.Report) (err error) {
	tx, err := s.ledger.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}

	defer func() {
		if err == nil {
			return
		}

		rbErr := tx.Rollback()
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = errors.Join(err, rbErr)
		}
	}()

	var parent, shrink any
	if r.ParentInput != "" {
		parent = r.ParentInput
	}

	if r.ShrinkPercent != nil {
		shrink = *r.ShrinkPercent
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reports (run_id, crashing_input, parent_input, slice_linecount, dice_linecount, shrink_percent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.runID, r.CrashingInput, parent, r.SliceLineCount, r.DiceLineCount, shrink, s.timestamp())
	if err != nil {
		return fmt.Errorf("ledger insert report: %w", err)
	}

	reportID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("ledger report id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO suspects (report_id, rank, line, count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ledger prepare suspects: %w", err)
	}
	defer stmt.Close()

	for rank, node := range r.DiffNodeSpec {
		_, err = stmt.ExecContext(ctx, reportID, rank+1, node.Line, node.Count)
		if err != nil {
			return fmt.Errorf("ledger insert suspect: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}

	return nil
}

// Close marks the run finished and closes the ledger.
func (s *LedgerSink) Close() error {
	_, err := s.ledger.db.Exec(`UPDATE runs SET finished_at = ? WHERE id = ?`, s.timestamp(), s.runID)
	if err != nil {
		err = fmt.Errorf("ledger finish run: %w", err)
	}

	return errors.Join(err, s.ledger.Close())
}

func (s *LedgerSink) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}
