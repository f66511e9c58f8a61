package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/storeerr"
)

const taskColumns = `
	id, kind, target_path, photo_ids, scheduled_at, hours_start, hours_end,
	status, created_at, started_at, completed_at, error_message
`

func scanTask(row interface{ Scan(...any) error }) (*photo.ScheduledTask, error) {
	var t photo.ScheduledTask
	var kind, status string
	var photoIDs sql.NullString
	var hoursStart, hoursEnd sql.NullInt64
	var scheduledAt, createdAt sql.NullString
	var startedAt, completedAt sql.NullString
	var errMsg sql.NullString

	err := row.Scan(
		&t.ID, &kind, &t.TargetPath, &photoIDs, &scheduledAt, &hoursStart, &hoursEnd,
		&status, &createdAt, &startedAt, &completedAt, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = photo.TaskKind(kind)
	t.Status = photo.TaskStatus(status)
	if scheduledAt.Valid {
		t.ScheduledAt = parseTime(scheduledAt.String)
	}
	if createdAt.Valid {
		t.CreatedAt = parseTime(createdAt.String)
	}
	if photoIDs.Valid && photoIDs.String != "" {
		_ = json.Unmarshal([]byte(photoIDs.String), &t.PhotoIDs)
	}
	if hoursStart.Valid {
		v := int(hoursStart.Int64)
		t.HoursStart = &v
	}
	if hoursEnd.Valid {
		v := int(hoursEnd.Int64)
		t.HoursEnd = &v
	}
	if startedAt.Valid && startedAt.String != "" {
		t.StartedAt = parseTimePtr(startedAt.String)
	}
	if completedAt.Valid && completedAt.String != "" {
		t.CompletedAt = parseTimePtr(completedAt.String)
	}
	if errMsg.Valid {
		t.ErrorMessage = errMsg.String
	}
	return &t, nil
}

func (b *Backend) CreateTask(ctx context.Context, t *photo.ScheduledTask) (int64, error) {
	var photoIDsJSON any
	if len(t.PhotoIDs) > 0 {
		data, err := json.Marshal(t.PhotoIDs)
		if err != nil {
			return 0, storeerr.New(storeerr.IOTransient, "CreateTask", err)
		}
		photoIDsJSON = string(data)
	}
	if t.Status == "" {
		t.Status = photo.TaskPending
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (kind, target_path, photo_ids, scheduled_at, hours_start, hours_end, status)
		VALUES (?,?,?,?,?,?,?)
	`, string(t.Kind), t.TargetPath, photoIDsJSON, timeToArg(t.ScheduledAt), t.HoursStart, t.HoursEnd, string(t.Status))
	if err != nil {
		return 0, storeerr.New(storeerr.Conflict, "CreateTask", err)
	}
	return res.LastInsertId()
}

// hoursWindowOK implements the half-open [start, end) hours-of-operation
// rule: start==end means always on; start<end is a same-day window;
// start>end wraps past midnight.
func hoursWindowOK(now time.Time, start, end *int) bool {
	if start == nil || end == nil {
		return true
	}
	if *start == *end {
		return true
	}
	hour := now.Local().Hour()
	if *start < *end {
		return hour >= *start && hour < *end
	}
	return hour >= *start || hour < *end
}

// ClaimDue selects the oldest eligible pending task and atomically
// transitions it to running, retrying against the next candidate if a
// concurrent claimant won the race on the first pick. Returns nil, nil
// when nothing is due.
func (b *Backend) ClaimDue(ctx context.Context, now time.Time) (*photo.ScheduledTask, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+taskColumns+` FROM scheduled_tasks
		WHERE status = 'pending' AND scheduled_at <= ? ORDER BY scheduled_at ASC`, timeToArg(now))
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ClaimDue", err)
	}
	var candidates []*photo.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, storeerr.New(storeerr.IOTransient, "ClaimDue", err)
		}
		candidates = append(candidates, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ClaimDue", err)
	}

	for _, t := range candidates {
		if !hoursWindowOK(now, t.HoursStart, t.HoursEnd) {
			continue
		}
		res, err := b.db.ExecContext(ctx, `
			UPDATE scheduled_tasks SET status = 'running', started_at = ?
			WHERE id = ? AND status = 'pending'
		`, timeToArg(now), t.ID)
		if err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "ClaimDue", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "ClaimDue", err)
		}
		if n == 1 {
			t.Status = photo.TaskRunning
			t.StartedAt = &now
			return t, nil
		}
		// Lost the race to another claimant; try the next candidate.
	}
	return nil, nil
}

func (b *Backend) SetTaskStatus(ctx context.Context, id int64, status photo.TaskStatus, errMsg string) error {
	var completedAt any
	if status == photo.TaskCompleted || status == photo.TaskFailed || status == photo.TaskCancelled {
		completedAt = timeToArg(time.Now())
	}
	_, err := b.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = ?, error_message = ?, completed_at = ? WHERE id = ?
	`, string(status), nullableString(errMsg), completedAt, id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "SetTaskStatus", err)
	}
	return nil
}

func (b *Backend) ListOverdue(ctx context.Context, now time.Time) ([]*photo.ScheduledTask, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+taskColumns+` FROM scheduled_tasks
		WHERE status = 'pending' AND scheduled_at < ? ORDER BY scheduled_at ASC`, timeToArg(now))
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ListOverdue", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (b *Backend) ListPending(ctx context.Context) ([]*photo.ScheduledTask, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+taskColumns+` FROM scheduled_tasks
		WHERE status = 'pending' ORDER BY scheduled_at ASC`)
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ListPending", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]*photo.ScheduledTask, error) {
	var out []*photo.ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "collectTasks", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReapStaleRunning moves running tasks whose started_at predates
// staleAfter back to failed — the janitor that recovers from an
// executor panic that never reached SetTaskStatus.
func (b *Backend) ReapStaleRunning(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleAfter)
	res, err := b.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET status = 'failed', error_message = 'reaped: exceeded stale-running threshold', completed_at = ?
		WHERE status = 'running' AND started_at < ?
	`, timeToArg(time.Now()), timeToArg(cutoff))
	if err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "ReapStaleRunning", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "ReapStaleRunning", err)
	}
	return int(n), nil
}

func (b *Backend) GetDirectoryPrompt(ctx context.Context, directory string) (string, error) {
	var prompt string
	err := b.db.QueryRowContext(ctx, "SELECT prompt FROM directory_prompts WHERE directory = ?", directory).Scan(&prompt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", storeerr.New(storeerr.IOTransient, "GetDirectoryPrompt", err)
	}
	return prompt, nil
}

func (b *Backend) SetDirectoryPrompt(ctx context.Context, directory, prompt string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO directory_prompts (directory, prompt) VALUES (?,?)
		ON CONFLICT(directory) DO UPDATE SET prompt = excluded.prompt
	`, directory, prompt)
	if err != nil {
		return storeerr.New(storeerr.Conflict, "SetDirectoryPrompt", err)
	}
	return nil
}
