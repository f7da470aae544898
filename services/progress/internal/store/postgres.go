package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the production Postgres-backed implementation.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ ProgressRepository = (*PostgresStore)(nil)

const moduleColumns = `id, user_id, module_id, time_spent_sec, last_lesson_id, last_accessed_at, completed_at`

func (s *PostgresStore) EnsureModuleProgress(ctx context.Context, userID, moduleID uuid.UUID) (ModuleProgress, error) {
	q := `
INSERT INTO module_progress (id, user_id, module_id)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, module_id) DO NOTHING
RETURNING ` + moduleColumns

	m, err := scanModule(s.db.QueryRow(ctx, q, uuid.New(), userID, moduleID))
	if err != nil {
		// Conflict clause suppressed the insert; the row already exists.
		if errors.Is(err, pgx.ErrNoRows) {
			return s.fetchModule(ctx, userID, moduleID)
		}
		return ModuleProgress{}, mapPgError(err)
	}
	return m, nil
}

func (s *PostgresStore) fetchModule(ctx context.Context, userID, moduleID uuid.UUID) (ModuleProgress, error) {
	q := `SELECT ` + moduleColumns + ` FROM module_progress WHERE user_id=$1 AND module_id=$2`
	m, err := scanModule(s.db.QueryRow(ctx, q, userID, moduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ModuleProgress{}, ErrNotFound
		}
		return ModuleProgress{}, mapPgError(err)
	}
	return m, nil
}

func (s *PostgresStore) ListModuleProgress(ctx context.Context, userID uuid.UUID) ([]ModuleProgress, error) {
	q := `SELECT ` + moduleColumns + `
FROM module_progress
WHERE user_id=$1
ORDER BY last_accessed_at DESC, module_id DESC`

	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []ModuleProgress
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ApplyStepUpdate(ctx context.Context, w StepWrite) (LessonProgress, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return LessonProgress{}, mapPgError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	mpID, err := upsertModuleTx(ctx, tx, w, now)
	if err != nil {
		return LessonProgress{}, err
	}
	lp, err := upsertLessonTx(ctx, tx, mpID, w, false, now)
	if err != nil {
		return LessonProgress{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return LessonProgress{}, mapPgError(err)
	}
	return lp, nil
}

func (s *PostgresStore) ApplyLessonCompletion(ctx context.Context, w StepWrite, activeLessonIDs []uuid.UUID) (CompletionResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return CompletionResult{}, mapPgError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	mpID, err := upsertModuleTx(ctx, tx, w, now)
	if err != nil {
		return CompletionResult{}, err
	}

	var wasCompleted bool
	err = tx.QueryRow(ctx,
		`SELECT completed FROM lesson_progress WHERE module_progress_id=$1 AND lesson_id=$2`,
		mpID, w.LessonID,
	).Scan(&wasCompleted)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return CompletionResult{}, mapPgError(err)
	}

	lp, err := upsertLessonTx(ctx, tx, mpID, w, true, now)
	if err != nil {
		return CompletionResult{}, err
	}

	// Live re-count against current storage, restricted to the module's
	// currently active lesson set.
	var completedCount int32
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM lesson_progress WHERE module_progress_id=$1 AND completed AND lesson_id = ANY($2)`,
		mpID, activeLessonIDs,
	).Scan(&completedCount)
	if err != nil {
		return CompletionResult{}, mapPgError(err)
	}

	res := CompletionResult{
		Lesson:           lp,
		LessonTransition: !wasCompleted,
		CompletedLessons: completedCount,
	}

	if int(completedCount) == len(activeLessonIDs) && len(activeLessonIDs) > 0 {
		tag, err := tx.Exec(ctx,
			`UPDATE module_progress SET completed_at=$2, updated_at=$2 WHERE id=$1 AND completed_at IS NULL`,
			mpID, now,
		)
		if err != nil {
			return CompletionResult{}, mapPgError(err)
		}
		res.ModuleCompleted = tag.RowsAffected() > 0
	}

	if err := tx.Commit(ctx); err != nil {
		return CompletionResult{}, mapPgError(err)
	}
	return res, nil
}

func (s *PostgresStore) ApplyStepEvent(ctx context.Context, eventID uuid.UUID, w StepWrite) (LessonProgress, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return LessonProgress{}, false, mapPgError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO processed_events (event_id, subject) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`,
		eventID, "progress.step.updated",
	)
	if err != nil {
		return LessonProgress{}, false, mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		// Replay; progress was already applied in an earlier delivery.
		return LessonProgress{}, false, nil
	}

	now := time.Now().UTC()
	mpID, err := upsertModuleTx(ctx, tx, w, now)
	if err != nil {
		return LessonProgress{}, false, err
	}
	lp, err := upsertLessonTx(ctx, tx, mpID, w, false, now)
	if err != nil {
		return LessonProgress{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return LessonProgress{}, false, mapPgError(err)
	}
	return lp, true, nil
}

func (s *PostgresStore) FindLessonProgress(ctx context.Context, userID, moduleID, lessonID uuid.UUID) (LessonLookup, error) {
	q := `
SELECT lp.id, lp.module_progress_id, lp.lesson_id, lp.current_step, lp.total_steps, lp.completed, lp.time_spent_sec, lp.last_accessed_at
FROM lesson_progress lp
JOIN module_progress mp ON mp.id = lp.module_progress_id
WHERE mp.user_id=$1 AND mp.module_id=$2 AND lp.lesson_id=$3`

	lp, err := scanLesson(s.db.QueryRow(ctx, q, userID, moduleID, lessonID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LessonLookup{}, nil
		}
		return LessonLookup{}, mapPgError(err)
	}
	return LessonLookup{Started: true, Record: lp}, nil
}

func (s *PostgresStore) ListLessonProgress(ctx context.Context, userID, moduleID uuid.UUID) ([]LessonProgress, error) {
	q := `
SELECT lp.id, lp.module_progress_id, lp.lesson_id, lp.current_step, lp.total_steps, lp.completed, lp.time_spent_sec, lp.last_accessed_at
FROM lesson_progress lp
JOIN module_progress mp ON mp.id = lp.module_progress_id
WHERE mp.user_id=$1 AND mp.module_id=$2`

	rows, err := s.db.Query(ctx, q, userID, moduleID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	var out []LessonProgress
	for rows.Next() {
		lp, err := scanLesson(rows)
		if err != nil {
			return nil, mapPgError(err)
		}
		out = append(out, lp)
	}
	return out, rows.Err()
}

// upsertModuleTx creates or updates the module row inside tx: the time delta
// is additive, last_lesson_id and last_accessed_at follow the write.
// completed_at is never touched here.
func upsertModuleTx(ctx context.Context, tx pgx.Tx, w StepWrite, now time.Time) (uuid.UUID, error) {
	q := `
INSERT INTO module_progress (id, user_id, module_id, time_spent_sec, last_lesson_id, last_accessed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (user_id, module_id)
DO UPDATE SET
  time_spent_sec   = module_progress.time_spent_sec + EXCLUDED.time_spent_sec,
  last_lesson_id   = EXCLUDED.last_lesson_id,
  last_accessed_at = EXCLUDED.last_accessed_at,
  updated_at       = EXCLUDED.updated_at
RETURNING id`

	var id uuid.UUID
	err := tx.QueryRow(ctx, q, uuid.New(), w.UserID, w.ModuleID, w.TimeSpentSec, w.LessonID, now).Scan(&id)
	if err != nil {
		return uuid.Nil, mapPgError(err)
	}
	return id, nil
}

const lessonReturning = `
RETURNING id, module_progress_id, lesson_id, current_step, total_steps, completed, time_spent_sec, last_accessed_at`

// upsertLessonTx creates or updates the lesson row inside tx. Position and
// totals are last-writer-wins, the time delta is additive. With
// forceComplete the completed flag is set true and stays true; otherwise it
// is left exactly as stored.
func upsertLessonTx(ctx context.Context, tx pgx.Tx, mpID uuid.UUID, w StepWrite, forceComplete bool, now time.Time) (LessonProgress, error) {
	q := `
INSERT INTO lesson_progress (id, module_progress_id, lesson_id, current_step, total_steps, completed, time_spent_sec, last_accessed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $7)
ON CONFLICT (module_progress_id, lesson_id)
DO UPDATE SET
  current_step     = EXCLUDED.current_step,
  total_steps      = EXCLUDED.total_steps,
  time_spent_sec   = lesson_progress.time_spent_sec + EXCLUDED.time_spent_sec,
  last_accessed_at = EXCLUDED.last_accessed_at,
  updated_at       = EXCLUDED.updated_at` + lessonReturning

	if forceComplete {
		q = `
INSERT INTO lesson_progress (id, module_progress_id, lesson_id, current_step, total_steps, completed, time_spent_sec, last_accessed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $7)
ON CONFLICT (module_progress_id, lesson_id)
DO UPDATE SET
  current_step     = EXCLUDED.current_step,
  total_steps      = EXCLUDED.total_steps,
  completed        = TRUE,
  time_spent_sec   = lesson_progress.time_spent_sec + EXCLUDED.time_spent_sec,
  last_accessed_at = EXCLUDED.last_accessed_at,
  updated_at       = EXCLUDED.updated_at` + lessonReturning
	}

	lp, err := scanLesson(tx.QueryRow(ctx, q, uuid.New(), mpID, w.LessonID, w.CurrentStep, w.TotalSteps, w.TimeSpentSec, now))
	if err != nil {
		return LessonProgress{}, mapPgError(err)
	}
	return lp, nil
}

func scanModule(row pgx.Row) (ModuleProgress, error) {
	var m ModuleProgress
	err := row.Scan(&m.ID, &m.UserID, &m.ModuleID, &m.TimeSpentSec, &m.LastLessonID, &m.LastAccessedAt, &m.CompletedAt)
	return m, err
}

func scanLesson(row pgx.Row) (LessonProgress, error) {
	var lp LessonProgress
	err := row.Scan(&lp.ID, &lp.ModuleProgressID, &lp.LessonID, &lp.CurrentStep, &lp.TotalSteps, &lp.Completed, &lp.TimeSpentSec, &lp.LastAccessedAt)
	return lp, err
}

// mapPgError converts driver errors into store sentinels. Serialization
// failures, deadlocks and unique races all surface as ErrConflict so the
// service layer can apply its bounded retry.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return ErrConflict
		}
	}
	return err
}
