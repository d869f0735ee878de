package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/repstats/internal/telemetry/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
)

var ErrSessionNotFound = errors.New("session not found")

// RetentionCutoff is the hard cutoff for the one-shot database purge:
// Cleanup removes every session (and its sets) logged before it.
var RetentionCutoff = time.Date(2026, time.February, 22, 19, 30, 0, 0, time.UTC)

// timestamps are stored as RFC3339 UTC text, so lexicographic
// comparison in sqlite matches chronological order
const timeFormat = time.RFC3339

type CleanupResult struct {
	ZeroRepSets     int64 `json:"zero_rep_sets"`
	ExpiredSets     int64 `json:"expired_sets"`
	ExpiredSessions int64 `json:"expired_sessions"`
}

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{
		db: db,
	}
}

// AddSession inserts the session and all its sets with reps > 0 in a
// single transaction. Sets with no reps are silently dropped.
func (r *Repo) AddSession(ctx context.Context, session Session) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if session.LogTime.IsZero() {
		session.LogTime = time.Now().UTC()
	}
	session.LogTime = session.LogTime.UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO sessions (log_time, total_reps) VALUES (?, ?);`,
		session.LogTime.Format(timeFormat), session.TotalReps,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	sessionID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session last insert id: %w", err)
	}
	session.ID = int(sessionID)

	persistedSets := make([]Set, 0, len(session.Sets))
	for _, set := range session.Sets {
		if set.Reps <= 0 {
			continue
		}
		res, err = tx.ExecContext(
			ctx,
			`INSERT INTO sets (session_id, reps, duration_seconds, rest_time_after) VALUES (?, ?, ?, ?);`,
			session.ID, set.Reps, set.DurationSeconds, set.RestTimeAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("insert set: %w", err)
		}
		setID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("set last insert id: %w", err)
		}
		set.ID = int(setID)
		set.SessionID = session.ID
		persistedSets = append(persistedSets, set)
	}
	session.Sets = persistedSets

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(attribute.Int("session.id", session.ID))
	span.SetAttributes(attribute.Int("session.sets", len(session.Sets)))

	return &session, nil
}

// Cleanup purges zero-rep sets and everything logged before
// RetentionCutoff, in one transaction. Sets go first, sessions after,
// since the schema has no cascade and orphan sets must not survive.
func (r *Repo) Cleanup(ctx context.Context) (_ CleanupResult, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.cleanup")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var result CleanupResult

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	cutoff := RetentionCutoff.UTC().Format(timeFormat)

	res, err := tx.ExecContext(ctx, `DELETE FROM sets WHERE reps = 0;`)
	if err != nil {
		return result, fmt.Errorf("delete zero-rep sets: %w", err)
	}
	if result.ZeroRepSets, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("zero-rep sets rows affected: %w", err)
	}

	res, err = tx.ExecContext(
		ctx,
		`DELETE FROM sets WHERE session_id IN (SELECT id FROM sessions WHERE log_time < ?);`,
		cutoff,
	)
	if err != nil {
		return result, fmt.Errorf("delete expired sets: %w", err)
	}
	if result.ExpiredSets, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("expired sets rows affected: %w", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE log_time < ?;`, cutoff)
	if err != nil {
		return result, fmt.Errorf("delete expired sessions: %w", err)
	}
	if result.ExpiredSessions, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("expired sessions rows affected: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}

	span.SetAttributes(attribute.Int64("cleanup.expired_sessions", result.ExpiredSessions))

	return result, nil
}

// ListBetween returns all sessions with from <= log_time < to, oldest
// first. Nil bounds mean unbounded. Sets are not fetched.
func (r *Repo) ListBetween(ctx context.Context, from, to *time.Time) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.listbetween")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	query := `SELECT id, log_time, total_reps FROM sessions WHERE 1=1`
	var args []any
	if from != nil {
		query += ` AND log_time >= ?`
		args = append(args, from.UTC().Format(timeFormat))
	}
	if to != nil {
		query += ` AND log_time < ?`
		args = append(args, to.UTC().Format(timeFormat))
	}
	query += ` ORDER BY log_time ASC;`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return rows2sessions(rows)
}

// List returns the requested page of sessions, newest first, together
// with the total session count.
func (r *Repo) List(ctx context.Context, page, size int) (_ []Session, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", page))
	span.SetAttributes(attribute.Int("size", size))

	if page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	total, err = r.SessionsCount(ctx)
	if err != nil {
		return nil, -1, err
	}

	limit := size
	offset := (page - 1) * size
	if offset >= total {
		return []Session{}, total, nil
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, log_time, total_reps FROM sessions ORDER BY log_time DESC LIMIT ? OFFSET ?;`,
		limit, offset,
	)
	if err != nil {
		return nil, -1, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	sessions, err := rows2sessions(rows)
	if err != nil {
		return nil, -1, err
	}
	return sessions, total, nil
}

func (r *Repo) SessionsCount(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions;`).Scan(&count); err != nil {
		return -1, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// Get returns the session together with its sets.
func (r *Repo) Get(ctx context.Context, id int) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	var logTimeRaw string
	session := Session{}
	err = r.db.QueryRowContext(
		ctx,
		`SELECT id, log_time, total_reps FROM sessions WHERE id = ?;`,
		id,
	).Scan(&session.ID, &logTimeRaw, &session.TotalReps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	if session.LogTime, err = time.Parse(timeFormat, logTimeRaw); err != nil {
		return nil, fmt.Errorf("parse log_time for session %d: %w", id, err)
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, session_id, reps, duration_seconds, rest_time_after FROM sets WHERE session_id = ? ORDER BY id ASC;`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query sets: %w", err)
	}
	defer rows.Close()

	sets := make([]Set, 0)
	for rows.Next() {
		var set Set
		if err := rows.Scan(&set.ID, &set.SessionID, &set.Reps, &set.DurationSeconds, &set.RestTimeAfter); err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	session.Sets = sets

	return &session, nil
}

// Delete removes the session and its sets, sets first, in one
// transaction.
func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierr.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM sets WHERE session_id = ?;`, id); err != nil {
		return fmt.Errorf("delete sets: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MaxSetReps returns the highest rep count of a single set ever logged.
func (r *Repo) MaxSetReps(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.maxsetreps")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var maxReps int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(reps), 0) FROM sets;`).Scan(&maxReps); err != nil {
		return 0, fmt.Errorf("max set reps: %w", err)
	}
	return maxReps, nil
}

// MaxSessionReps returns the highest total_reps of a single session.
func (r *Repo) MaxSessionReps(ctx context.Context) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.maxsessionreps")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var maxReps int
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(total_reps), 0) FROM sessions;`).Scan(&maxReps); err != nil {
		return 0, fmt.Errorf("max session reps: %w", err)
	}
	return maxReps, nil
}

func rows2sessions(rows *sql.Rows) ([]Session, error) {
	sessions := make([]Session, 0)
	for rows.Next() {
		var session Session
		var logTimeRaw string
		if err := rows.Scan(&session.ID, &logTimeRaw, &session.TotalReps); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		logTime, err := time.Parse(timeFormat, logTimeRaw)
		if err != nil {
			return nil, fmt.Errorf("parse log_time for session %d: %w", session.ID, err)
		}
		session.LogTime = logTime
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return sessions, nil
}
