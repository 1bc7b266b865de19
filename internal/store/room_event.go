package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

const (
	tableRoomEvents    = "room_events"
	tableRequestEvents = "request_events"
)

type eventRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *eventRepo) AppendRoomEvent(ctx context.Context, data RoomEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	query, args := entsql.Dialect(dialect.SQLite).
		Insert(tableRoomEvents).
		Columns("sequence", "timestamp", "run_id", "session_id", "action",
			"question_index", "attempt_id", "bytes", "error_message").
		Values(seqNum, time.Now().UTC().UnixMilli(), data.RunID, data.SessionID, data.Action,
			data.QuestionIndex, data.AttemptID, data.Bytes, data.ErrorMessage).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save room event: %w", err)
	}
	return nil
}

func (r *eventRepo) AppendRequestEvent(ctx context.Context, data RequestEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	success := 0
	if data.Success {
		success = 1
	}
	query, args := entsql.Dialect(dialect.SQLite).
		Insert(tableRequestEvents).
		Columns("sequence", "timestamp", "operation", "session_id", "latency_ms",
			"success", "error_message").
		Values(seqNum, time.Now().UTC().UnixMilli(), data.Operation, data.SessionID,
			data.LatencyMs, success, data.ErrorMessage).
		Query()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save request event: %w", err)
	}
	return nil
}

func (r *eventRepo) RoomEvents(ctx context.Context, runID string) ([]RoomEvent, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("sequence", "timestamp", "run_id", "session_id", "action",
			"question_index", "attempt_id", "bytes", "error_message").
		From(entsql.Table(tableRoomEvents)).
		Where(entsql.EQ("run_id", runID)).
		OrderBy("sequence").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query room events: %w", err)
	}
	defer rows.Close()

	var events []RoomEvent
	for rows.Next() {
		var (
			e  RoomEvent
			ts int64
		)
		if err := rows.Scan(&e.Sequence, &ts, &e.RunID, &e.SessionID, &e.Action,
			&e.QuestionIndex, &e.AttemptID, &e.Bytes, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan room event: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *eventRepo) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	sel := entsql.Dialect(dialect.SQLite).
		Select(
			"run_id",
			entsql.As(entsql.Max("session_id"), "session_id"),
			entsql.As(entsql.Min("timestamp"), "started_at"),
			entsql.As(entsql.Max("timestamp"), "last_event"),
			"SUM(action = 'recorded')",
			"SUM(action = 'uploaded')",
			"SUM(action = 'upload_failed')",
			"MAX(action = 'completed')",
			"MAX(action = 'canceled')",
		).
		From(entsql.Table(tableRoomEvents)).
		GroupBy("run_id").
		OrderBy(entsql.Desc("started_at"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			s                   RunSummary
			started, last       int64
			completed, canceled int
		)
		if err := rows.Scan(&s.RunID, &s.SessionID, &started, &last,
			&s.Recorded, &s.Uploaded, &s.Failed, &completed, &canceled); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		s.StartedAt = time.UnixMilli(started).UTC()
		s.LastEvent = time.UnixMilli(last).UTC()
		s.Completed = completed == 1
		s.Canceled = canceled == 1
		runs = append(runs, s)
	}
	return runs, rows.Err()
}
