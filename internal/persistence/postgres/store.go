// Package postgres implements persistence.Store on PostgreSQL through pgxpool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

//go:embed schema.sql
var schemaSQL string

const reminderColumns = `id, task_id, recipient_id, offset_kind, fire_at, title, meeting_label, due_at,
	delivered, delivered_at, retry_count, last_error`

// Only whitelisted columns are ever interpolated into SQL.
var fieldColumns = map[persistence.Field]string{
	persistence.FieldTaskID:      "task_id",
	persistence.FieldRecipientID: "recipient_id",
	persistence.FieldDelivered:   "delivered",
}

// Store persists reminders and notification feeds in PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	newID func() string
}

// Open connects a pool to dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, newID: uuid.NewString}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Insert stores a new reminder record.
func (s *Store) Insert(ctx context.Context, rec reminder.Record) (string, error) {
	if err := persistence.ValidateRecord(rec); err != nil {
		return "", err
	}

	const q = `INSERT INTO task_reminders (` + reminderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	var deliveredAt *int64
	if rec.DeliveredAt != nil {
		at := rec.DeliveredAt.UnixMilli()
		deliveredAt = &at
	}

	id := s.newID()
	_, err := s.pool.Exec(ctx, q,
		id,
		rec.TaskID,
		rec.RecipientID,
		string(rec.OffsetKind),
		rec.FireAt.UnixMilli(),
		rec.Snapshot.Title,
		rec.Snapshot.MeetingLabel,
		rec.Snapshot.DueAt.UnixMilli(),
		rec.Delivered,
		deliveredAt,
		rec.RetryCount,
		rec.LastError,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: insert reminder: %w", mapError(err))
	}
	return id, nil
}

// QueryByField returns matching records ordered by fire time, then id.
func (s *Store) QueryByField(ctx context.Context, field persistence.Field, value any) ([]reminder.Record, error) {
	value, err := field.Normalize(value)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + reminderColumns + ` FROM task_reminders WHERE ` + fieldColumns[field] + ` = $1 ORDER BY fire_at, id`
	rows, err := s.pool.Query(ctx, q, value)
	if err != nil {
		return nil, fmt.Errorf("postgres: query reminders by %s: %w", field, err)
	}
	defer rows.Close()

	out := make([]reminder.Record, 0)
	for rows.Next() {
		var (
			rec         reminder.Record
			offsetKind  string
			fireAt      int64
			dueAt       int64
			deliveredAt *int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.TaskID,
			&rec.RecipientID,
			&offsetKind,
			&fireAt,
			&rec.Snapshot.Title,
			&rec.Snapshot.MeetingLabel,
			&dueAt,
			&rec.Delivered,
			&deliveredAt,
			&rec.RetryCount,
			&rec.LastError,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan reminder: %w", err)
		}
		kind, err := reminder.ParseOffsetKind(offsetKind)
		if err != nil {
			return nil, err
		}
		rec.OffsetKind = kind
		rec.FireAt = time.UnixMilli(fireAt).UTC()
		rec.Snapshot.DueAt = time.UnixMilli(dueAt).UTC()
		if deliveredAt != nil {
			at := time.UnixMilli(*deliveredAt).UTC()
			rec.DeliveredAt = &at
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows reminders: %w", err)
	}
	return out, nil
}

// UpdateFields applies the non-nil fields of patch to the record.
func (s *Store) UpdateFields(ctx context.Context, id string, patch persistence.Patch) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if patch.Delivered != nil {
		add("delivered", *patch.Delivered)
	}
	if patch.DeliveredAt != nil {
		add("delivered_at", patch.DeliveredAt.UnixMilli())
	}
	if patch.RetryCount != nil {
		add("retry_count", *patch.RetryCount)
	}
	if patch.LastError != nil {
		add("last_error", *patch.LastError)
	}
	if patch.FireAt != nil {
		add("fire_at", patch.FireAt.UnixMilli())
	}

	if len(sets) == 0 {
		var one int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM task_reminders WHERE id = $1`, id).Scan(&one)
		return mapError(err)
	}

	args = append(args, id)
	q := `UPDATE task_reminders SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("postgres: update reminder %s: %w", id, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM task_reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete reminder %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// AppendNotification adds a notification to the recipient's feed.
func (s *Store) AppendNotification(ctx context.Context, recipientID string, n reminder.Notification) (string, error) {
	payload := n.Payload
	if payload == nil {
		payload = map[string]string{}
	}

	id := s.newID()
	const q = `INSERT INTO notifications (id, recipient_id, title, message, category, link_target, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := s.pool.Exec(ctx, q, id, recipientID, n.Title, n.Message, string(n.Category), n.LinkTarget, payload, n.CreatedAt.UnixMilli()); err != nil {
		return "", fmt.Errorf("postgres: insert notification: %w", mapError(err))
	}
	return id, nil
}

// ListNotifications returns the recipient's feed, newest first.
func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]persistence.StoredNotification, error) {
	q := `SELECT id, recipient_id, title, message, category, link_target, payload, created_at
		FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC, seq DESC`
	args := []any{recipientID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]persistence.StoredNotification, 0)
	for rows.Next() {
		var (
			n         persistence.StoredNotification
			category  string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &category, &n.LinkTarget, &n.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		n.Category = reminder.Category(category)
		n.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows notifications: %w", err)
	}
	return out, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%w: %s", persistence.ErrConstraintViolation, pgErr.Message)
	}
	return err
}

var _ persistence.Store = (*Store)(nil)
