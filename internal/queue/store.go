package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelsmith/internal/database"
	"reelsmith/internal/services"
	"reelsmith/internal/stage"
)

// Store persists jobs and per-video leases.
type Store struct {
	db  *database.DB
	now func() time.Time
}

// NewStore wraps an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const jobColumns = `id, video_id, user_id, requested_stage, status, failure_reason,
	created_at, processed_at, finished_at, updated_at`

// Enqueue inserts a waiting job and takes the video lease for it. A video that
// already holds a lease for an unfinished job is rejected with ErrConflict.
func (s *Store) Enqueue(ctx context.Context, videoID, userID string, from stage.Stage, owner string) (*Job, error) {
	id := uuid.NewString()
	now := database.FormatTime(s.now())

	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		// Leases left behind by finished jobs never block a new submission.
		if _, err := tx.Exec(ctx,
			`DELETE FROM video_leases
             WHERE video_id = ? AND job_id IN (SELECT id FROM jobs WHERE status IN (?, ?))`,
			videoID, StatusCompleted, StatusFailed,
		); err != nil {
			return fmt.Errorf("clear finished lease: %w", err)
		}

		var holder string
		err := tx.QueryRow(ctx, `SELECT job_id FROM video_leases WHERE video_id = ?`, videoID).Scan(&holder)
		switch {
		case err == nil:
			return conflict(videoID, holder)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("read lease: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO video_leases (video_id, job_id, owner, acquired_at, heartbeat_at) VALUES (?, ?, ?, ?, ?)`,
			videoID, id, owner, now, now,
		); err != nil {
			if database.IsUniqueViolation(err) {
				return conflict(videoID, "")
			}
			return fmt.Errorf("insert lease: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO jobs (id, video_id, user_id, requested_stage, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, videoID, userID, from, StatusWaiting, now, now,
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func conflict(videoID, holder string) error {
	msg := fmt.Sprintf("video %s already has a job in progress", videoID)
	if holder != "" {
		msg = fmt.Sprintf("video %s already has job %s in progress", videoID, holder)
	}
	return services.Wrap(services.ErrConflict, "", "submit", msg, nil)
}

// Get returns a job by id. Missing jobs return nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first, optionally limited to one video.
func (s *Store) List(ctx context.Context, videoID string, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if strings.TrimSpace(videoID) != "" {
		query += ` WHERE video_id = ?`
		args = append(args, videoID)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkActive moves a waiting job to active. It reports false when the job is
// no longer waiting, for example after a cancel.
func (s *Store) MarkActive(ctx context.Context, id string) (bool, error) {
	now := database.FormatTime(s.now())
	var started bool
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		res, err := tx.Exec(ctx,
			`UPDATE jobs SET status = ?, processed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusActive, now, now, id, StatusWaiting)
		if err != nil {
			return fmt.Errorf("activate job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		started = n > 0
		if !started {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE video_leases SET heartbeat_at = ? WHERE job_id = ?`, now, id)
		return err
	})
	return started, err
}

// Finish records the outcome of a job and releases its lease. A nil runErr
// completes the job. Jobs that are already terminal are left untouched.
func (s *Store) Finish(ctx context.Context, id string, runErr error) (*Job, error) {
	status := StatusCompleted
	var reason any
	if runErr != nil {
		status = StatusFailed
		reason = FailureReason(runErr)
	}
	if err := s.finish(ctx, []string{id}, status, reason, StatusWaiting, StatusActive); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// CancelWaiting fails a job that has not started yet. It reports false when the
// job was not waiting.
func (s *Store) CancelWaiting(ctx context.Context, id string) (bool, error) {
	job, err := s.Get(ctx, id)
	if err != nil || job == nil || job.Status != StatusWaiting {
		return false, err
	}
	if err := s.finish(ctx, []string{id}, StatusFailed, ReasonCancelled, StatusWaiting); err != nil {
		return false, err
	}
	after, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return after != nil && after.Status == StatusFailed && after.FailureReason == ReasonCancelled, nil
}

func (s *Store) finish(ctx context.Context, ids []string, status Status, reason any, from ...Status) error {
	if len(ids) == 0 {
		return nil
	}
	now := database.FormatTime(s.now())
	return s.db.InTx(ctx, func(tx *database.Tx) error {
		for _, id := range ids {
			args := []any{status, reason, now, now, id}
			for _, st := range from {
				args = append(args, st)
			}
			res, err := tx.Exec(ctx,
				`UPDATE jobs SET status = ?, failure_reason = ?, finished_at = ?, updated_at = ?
                 WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
				args...)
			if err != nil {
				return fmt.Errorf("finish job %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if _, err := tx.Exec(ctx, `DELETE FROM video_leases WHERE job_id = ?`, id); err != nil {
				return fmt.Errorf("release lease: %w", err)
			}
		}
		return nil
	})
}

// Heartbeat refreshes the lease held by an active job.
func (s *Store) Heartbeat(ctx context.Context, jobID string) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE video_leases SET heartbeat_at = ? WHERE job_id = ?`,
		database.FormatTime(s.now()), jobID,
	); err != nil {
		return fmt.Errorf("lease heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale fails unfinished jobs whose lease heartbeat is older than
// cutoff and releases their leases. Active jobs heartbeat while they run and
// waiting jobs are refreshed by the process that submitted them, so a stale
// lease means the holder is gone. The reclaimed jobs are returned so callers
// can mark their videos.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	jobs, err := s.selectJobs(ctx,
		`SELECT `+prefixed("j.", jobColumns)+`
         FROM jobs j JOIN video_leases l ON l.job_id = j.id
         WHERE j.status IN (?, ?) AND l.heartbeat_at < ?`,
		StatusWaiting, StatusActive, database.FormatTime(cutoff))
	if err != nil {
		return nil, err
	}
	return s.failAll(ctx, jobs, StatusWaiting, StatusActive)
}

// RefreshWaiting renews the leases of owner's jobs that have not started yet.
func (s *Store) RefreshWaiting(ctx context.Context, owner string) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE video_leases SET heartbeat_at = ?
         WHERE owner = ? AND job_id IN (SELECT id FROM jobs WHERE status = ?)`,
		database.FormatTime(s.now()), owner, StatusWaiting,
	); err != nil {
		return fmt.Errorf("refresh waiting leases: %w", err)
	}
	return nil
}

// FailOrphaned fails every unfinished job owned by owner. An in-process queue
// calls it on start because its waiting and active jobs died with the
// previous process.
func (s *Store) FailOrphaned(ctx context.Context, owner string) ([]*Job, error) {
	jobs, err := s.selectJobs(ctx,
		`SELECT `+prefixed("j.", jobColumns)+`
         FROM jobs j JOIN video_leases l ON l.job_id = j.id
         WHERE j.status IN (?, ?) AND l.owner = ?`,
		StatusWaiting, StatusActive, owner)
	if err != nil {
		return nil, err
	}
	return s.failAll(ctx, jobs, StatusWaiting, StatusActive)
}

func (s *Store) failAll(ctx context.Context, jobs []*Job, from ...Status) ([]*Job, error) {
	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	if err := s.finish(ctx, ids, StatusFailed, ReasonInterrupted, from...); err != nil {
		return nil, err
	}
	for _, job := range jobs {
		job.Status = StatusFailed
		job.FailureReason = ReasonInterrupted
	}
	return jobs, nil
}

func (s *Store) selectJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// LeasedVideos returns the ids of videos held by a waiting or active job.
func (s *Store) LeasedVideos(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx,
		`SELECT l.video_id FROM video_leases l JOIN jobs j ON j.id = l.job_id
         WHERE j.status IN (?, ?)`,
		StatusWaiting, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("leased videos: %w", err)
	}
	defer rows.Close()
	leased := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		leased[id] = struct{}{}
	}
	return leased, rows.Err()
}

// Stats counts jobs per status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		switch Status(status) {
		case StatusWaiting:
			stats.Waiting = count
		case StatusActive:
			stats.Active = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job          Job
		stageName    string
		status       string
		reason       sql.NullString
		createdRaw   sql.NullString
		processedRaw sql.NullString
		finishedRaw  sql.NullString
		updatedRaw   sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.VideoID,
		&job.UserID,
		&stageName,
		&status,
		&reason,
		&createdRaw,
		&processedRaw,
		&finishedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.RequestedStage = stage.Stage(stageName)
	job.Status = Status(status)
	job.FailureReason = reason.String
	job.CreatedAt = database.ParseTime(createdRaw)
	job.ProcessedAt = database.ParseTime(processedRaw)
	job.FinishedAt = database.ParseTime(finishedRaw)
	job.UpdatedAt = database.ParseTime(updatedRaw)
	return &job, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func prefixed(prefix, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = prefix + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
