package postgres

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
	var startedAt, completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(
		&t.ID, &kind, &t.TargetPath, &photoIDs, &t.ScheduledAt, &hoursStart, &hoursEnd,
		&status, &t.CreatedAt, &startedAt, &completedAt, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = photo.TaskKind(kind)
	t.Status = photo.TaskStatus(status)
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
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
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

	var id int64
	err := b.db.QueryRowContext(ctx, `
		INSERT INTO scheduled_tasks (kind, target_path, photo_ids, scheduled_at, hours_start, hours_end, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id
	`, string(t.Kind), t.TargetPath, photoIDsJSON, t.ScheduledAt, t.HoursStart, t.HoursEnd, string(t.Status)).Scan(&id)
	if err != nil {
		return 0, storeerr.New(conflictOrIO(err), "CreateTask", err)
	}
	return id, nil
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
		WHERE status = 'pending' AND scheduled_at <= $1 ORDER BY scheduled_at ASC`, now)
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
			UPDATE scheduled_tasks SET status = 'running', started_at = $1
			WHERE id = $2 AND status = 'pending'
		`, now, t.ID)
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
		completedAt = time.Now().UTC()
	}
	_, err := b.db.ExecContext(ctx, `
		UPDATE scheduled_tasks SET status = $1, error_message = $2, completed_at = $3 WHERE id = $4
	`, string(status), nullableString(errMsg), completedAt, id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "SetTaskStatus", err)
	}
	return nil
}

func (b *Backend) ListOverdue(ctx context.Context, now time.Time) ([]*photo.ScheduledTask, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+taskColumns+` FROM scheduled_tasks
		WHERE status = 'pending' AND scheduled_at < $1 ORDER BY scheduled_at ASC`, now)
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
	cutoff := time.Now().UTC().Add(-staleAfter)
	res, err := b.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET status = 'failed', error_message = 'reaped: exceeded stale-running threshold', completed_at = NOW()
		WHERE status = 'running' AND started_at < $1
	`, cutoff)
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
	err := b.db.QueryRowContext(ctx, "SELECT prompt FROM directory_prompts WHERE directory = $1", directory).Scan(&prompt)
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
		INSERT INTO directory_prompts (directory, prompt) VALUES ($1,$2)
		ON CONFLICT (directory) DO UPDATE SET prompt = EXCLUDED.prompt
	`, directory, prompt)
	if err != nil {
		return storeerr.New(conflictOrIO(err), "SetDirectoryPrompt", err)
	}
	return nil
}
