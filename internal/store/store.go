// Package store persists tracking runs and their ledgers in a SQLite database
package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/LdDl/spindle-track/spindle"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrRunNotFound is returned when run id is not in the database
	ErrRunNotFound = errors.New("run not found")
	// ErrRunExists is returned when a run with the same id was already saved
	ErrRunExists = errors.New("run already saved")
)

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps the database handle
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// RunInfo describes one tracking run
type RunInfo struct {
	ID             uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	Input          string
	TimeStart      int
	FrameCount     int
	SpindleChannel int
	CellChannel    int
	Padding        int
	Algorithm      string
	LastIdentity   int
	Ambiguities    int
}

// Open opens (creating if needed) the database at path and migrates it to the latest schema
func Open(path string, logger zerolog.Logger) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open database %s", path)
	}
	st := &Store{db: db, logger: logger}
	if err := st.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

// Close closes the database
func (st *Store) Close() error {
	return st.db.Close()
}

// newMigrate creates migrate instance over embedded migrations.
// It must not be closed: closing it closes the underlying database handle.
func (st *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "can't read embedded migrations")
	}
	driver, err := sqlite.WithInstance(st.db, &sqlite.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "can't create sqlite migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, errors.Wrap(err, "can't create migrate instance")
	}
	m.Log = &migrateLogger{logger: st.logger}
	return m, nil
}

// MigrateUp applies pending migrations. Already up-to-date schema is not an error
func (st *Store) MigrateUp() error {
	m, err := st.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}
	return nil
}

// Version returns current schema version and dirty state. Zero means no migrations applied
func (st *Store) Version() (uint, bool, error) {
	m, err := st.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct {
	logger zerolog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// SaveRun stores run metadata and every frame and instance of the ledger in one transaction
func (st *Store) SaveRun(ctx context.Context, info RunInfo, ledger *spindle.Ledger) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "can't begin transaction")
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, info.ID.String()).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "can't check run")
	}
	if exists > 0 {
		return errors.Wrapf(ErrRunExists, "run %s", info.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, input, time_start, frame_count,
			spindle_channel, cell_channel, padding, algorithm, last_identity, ambiguities)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID.String(),
		info.StartedAt.UTC().Format(timeLayout),
		info.FinishedAt.UTC().Format(timeLayout),
		info.Input, info.TimeStart, info.FrameCount,
		info.SpindleChannel, info.CellChannel, info.Padding, info.Algorithm,
		info.LastIdentity, info.Ambiguities,
	)
	if err != nil {
		return errors.Wrapf(err, "can't insert run %s", info.ID)
	}

	frameStmt, err := tx.PrepareContext(ctx, `INSERT INTO frames (run_id, frame_index, height, width) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "can't prepare frame insert")
	}
	defer frameStmt.Close()
	instStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO instances (run_id, frame_index, local_index, identity,
			min_row, min_col, max_row, max_col, centroid_row, centroid_col,
			local_centroid_row, local_centroid_col, area)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "can't prepare instance insert")
	}
	defer instStmt.Close()

	for _, frame := range ledger.Frames() {
		if _, err := frameStmt.ExecContext(ctx, info.ID.String(), frame.Index, frame.Height, frame.Width); err != nil {
			return errors.Wrapf(err, "can't insert frame %d", frame.Index)
		}
		for _, inst := range frame.Instances {
			identity := sql.NullInt64{}
			if id, ok := inst.IdentityValue(); ok {
				identity = sql.NullInt64{Int64: int64(id), Valid: true}
			}
			_, err := instStmt.ExecContext(ctx,
				info.ID.String(), inst.FrameIndex, inst.LocalIndex, identity,
				inst.BBox.MinRow, inst.BBox.MinCol, inst.BBox.MaxRow, inst.BBox.MaxCol,
				inst.Centroid.Row, inst.Centroid.Col,
				inst.LocalCentroid.Row, inst.LocalCentroid.Col,
				inst.Area,
			)
			if err != nil {
				return errors.Wrapf(err, "can't insert instance %d of frame %d", inst.LocalIndex, inst.FrameIndex)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "can't commit run")
	}
	st.logger.Info().Str("run_id", info.ID.String()).Int("frames", ledger.NumFrames()).Int("instances", ledger.Len()).Msg("run saved")
	return nil
}

const runColumns = `run_id, started_at, finished_at, input, time_start, frame_count,
	spindle_channel, cell_channel, padding, algorithm, last_identity, ambiguities`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunInfo, error) {
	var (
		info                RunInfo
		id, started, finish string
	)
	err := row.Scan(&id, &started, &finish, &info.Input, &info.TimeStart, &info.FrameCount,
		&info.SpindleChannel, &info.CellChannel, &info.Padding, &info.Algorithm,
		&info.LastIdentity, &info.Ambiguities)
	if err != nil {
		return info, err
	}
	if info.ID, err = uuid.Parse(id); err != nil {
		return info, errors.Wrapf(err, "bad run id %q", id)
	}
	if info.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return info, errors.Wrapf(err, "bad start time of run %s", id)
	}
	if info.FinishedAt, err = time.Parse(timeLayout, finish); err != nil {
		return info, errors.Wrapf(err, "bad finish time of run %s", id)
	}
	return info, nil
}

// LoadRun returns metadata of one run
func (st *Store) LoadRun(ctx context.Context, runID uuid.UUID) (RunInfo, error) {
	row := st.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID.String())
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, errors.Wrapf(ErrRunNotFound, "run %s", runID)
	}
	if err != nil {
		return RunInfo{}, errors.Wrapf(err, "can't load run %s", runID)
	}
	return info, nil
}

// ListRuns returns every saved run ordered by start time
func (st *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := st.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at, run_id`)
	if err != nil {
		return nil, errors.Wrap(err, "can't list runs")
	}
	defer rows.Close()
	runs := make([]RunInfo, 0)
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "can't scan run")
		}
		runs = append(runs, info)
	}
	return runs, errors.Wrap(rows.Err(), "can't iterate runs")
}

// LoadLedger rebuilds the ledger of a saved run
func (st *Store) LoadLedger(ctx context.Context, runID uuid.UUID) (*spindle.Ledger, error) {
	if _, err := st.LoadRun(ctx, runID); err != nil {
		return nil, err
	}

	frames := make([]spindle.Frame, 0)
	slots := make(map[int]int)
	frameRows, err := st.db.QueryContext(ctx, `SELECT frame_index, height, width FROM frames WHERE run_id = ? ORDER BY frame_index`, runID.String())
	if err != nil {
		return nil, errors.Wrapf(err, "can't query frames of run %s", runID)
	}
	defer frameRows.Close()
	for frameRows.Next() {
		var frame spindle.Frame
		if err := frameRows.Scan(&frame.Index, &frame.Height, &frame.Width); err != nil {
			return nil, errors.Wrap(err, "can't scan frame")
		}
		slots[frame.Index] = len(frames)
		frames = append(frames, frame)
	}
	if err := frameRows.Err(); err != nil {
		return nil, errors.Wrap(err, "can't iterate frames")
	}

	instRows, err := st.db.QueryContext(ctx, `
		SELECT frame_index, local_index, identity,
			min_row, min_col, max_row, max_col, centroid_row, centroid_col,
			local_centroid_row, local_centroid_col, area
		FROM instances WHERE run_id = ? ORDER BY frame_index, local_index`, runID.String())
	if err != nil {
		return nil, errors.Wrapf(err, "can't query instances of run %s", runID)
	}
	defer instRows.Close()
	for instRows.Next() {
		var (
			inst     spindle.Instance
			identity sql.NullInt64
		)
		err := instRows.Scan(&inst.FrameIndex, &inst.LocalIndex, &identity,
			&inst.BBox.MinRow, &inst.BBox.MinCol, &inst.BBox.MaxRow, &inst.BBox.MaxCol,
			&inst.Centroid.Row, &inst.Centroid.Col,
			&inst.LocalCentroid.Row, &inst.LocalCentroid.Col,
			&inst.Area)
		if err != nil {
			return nil, errors.Wrap(err, "can't scan instance")
		}
		if identity.Valid {
			id := int(identity.Int64)
			inst.Identity = &id
		}
		slot, ok := slots[inst.FrameIndex]
		if !ok {
			return nil, errors.Errorf("instance refers to unknown frame %d", inst.FrameIndex)
		}
		frames[slot].Instances = append(frames[slot].Instances, inst)
	}
	if err := instRows.Err(); err != nil {
		return nil, errors.Wrap(err, "can't iterate instances")
	}

	ledger := spindle.NewLedger()
	for _, frame := range frames {
		if err := ledger.Append(frame); err != nil {
			return nil, errors.Wrapf(err, "can't rebuild frame %d", frame.Index)
		}
	}
	return ledger, nil
}
