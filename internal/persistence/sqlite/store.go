// Package sqlite implements persistence.Store on SQLite through the pure-Go
// modernc.org/sqlite driver. Times are stored as epoch milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/persistence/sqlite/migration"
	"github.com/example/club-reminders/internal/reminder"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const reminderColumns = `id, task_id, recipient_id, offset_kind, fire_at, title, meeting_label, due_at,
	delivered, delivered_at, retry_count, last_error`

var fieldColumns = map[persistence.Field]string{
	persistence.FieldTaskID:      "task_id",
	persistence.FieldRecipientID: "recipient_id",
	persistence.FieldDelivered:   "delivered",
}

// Store persists reminders and notification feeds in SQLite.
type Store struct {
	pool   *ConnectionPool
	query  *QueryHelper
	errs   *ErrorMapper
	retry  RetryConfig
	newID  func() string
	logger *slog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithIDGenerator overrides the default UUID id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets the logger used for migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open connects to the database described by config. Call Migrate before use.
func Open(config migration.SQLiteConfig, opts ...Option) (*Store, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	s := &Store{
		pool:   pool,
		query:  NewQueryHelper(pool),
		errs:   NewErrorMapper(),
		retry:  DefaultRetryConfig(),
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	manager := migration.NewManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationFiles,
		"migrations",
		s.logger,
	)
	return manager.RunMigrations(ctx)
}

// Insert stores a new reminder record.
func (s *Store) Insert(ctx context.Context, rec reminder.Record) (string, error) {
	if err := persistence.ValidateRecord(rec); err != nil {
		return "", err
	}

	id := s.newID()
	const insertSQL = `INSERT INTO task_reminders (` + reminderColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := withRetry(ctx, s.retry, func() error {
		_, err := s.query.Exec(ctx, insertSQL,
			id,
			rec.TaskID,
			rec.RecipientID,
			string(rec.OffsetKind),
			rec.FireAt.UnixMilli(),
			rec.Snapshot.Title,
			rec.Snapshot.MeetingLabel,
			rec.Snapshot.DueAt.UnixMilli(),
			boolToInt(rec.Delivered),
			millisOrNil(rec.DeliveredAt),
			rec.RetryCount,
			rec.LastError,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("sqlite: insert reminder: %w", s.errs.MapError(err))
	}
	return id, nil
}

// QueryByField returns matching records ordered by fire time, then id.
func (s *Store) QueryByField(ctx context.Context, field persistence.Field, value any) ([]reminder.Record, error) {
	value, err := field.Normalize(value)
	if err != nil {
		return nil, err
	}
	if b, ok := value.(bool); ok {
		value = boolToInt(b)
	}

	query := `SELECT ` + reminderColumns + ` FROM task_reminders WHERE ` + fieldColumns[field] + ` = ? ORDER BY fire_at ASC, id ASC`
	rows, err := s.query.Query(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query reminders by %s: %w", field, s.errs.MapError(err))
	}
	defer rows.Close()

	out := make([]reminder.Record, 0)
	for rows.Next() {
		rec, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate reminders: %w", err)
	}
	return out, nil
}

// UpdateFields applies the non-nil fields of patch to the record.
func (s *Store) UpdateFields(ctx context.Context, id string, patch persistence.Patch) error {
	var (
		sets []string
		args []any
	)
	if patch.Delivered != nil {
		sets = append(sets, "delivered = ?")
		args = append(args, boolToInt(*patch.Delivered))
	}
	if patch.DeliveredAt != nil {
		sets = append(sets, "delivered_at = ?")
		args = append(args, patch.DeliveredAt.UnixMilli())
	}
	if patch.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *patch.RetryCount)
	}
	if patch.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *patch.LastError)
	}
	if patch.FireAt != nil {
		sets = append(sets, "fire_at = ?")
		args = append(args, patch.FireAt.UnixMilli())
	}
	if len(sets) == 0 {
		return s.exists(ctx, id)
	}

	updateSQL := `UPDATE task_reminders SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	args = append(args, id)

	var result sql.Result
	err := withRetry(ctx, s.retry, func() error {
		var err error
		result, err = s.query.Exec(ctx, updateSQL, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: update reminder %s: %w", id, s.errs.MapError(err))
	}
	return requireAffected(result)
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	var result sql.Result
	err := withRetry(ctx, s.retry, func() error {
		var err error
		result, err = s.query.Exec(ctx, `DELETE FROM task_reminders WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: delete reminder %s: %w", id, s.errs.MapError(err))
	}
	return requireAffected(result)
}

// AppendNotification adds a notification to the recipient's feed.
func (s *Store) AppendNotification(ctx context.Context, recipientID string, n reminder.Notification) (string, error) {
	payload, err := json.Marshal(nonNilPayload(n.Payload))
	if err != nil {
		return "", fmt.Errorf("sqlite: encode notification payload: %w", err)
	}

	id := s.newID()
	const insertSQL = `INSERT INTO notifications (id, recipient_id, title, message, category, link_target, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	err = withRetry(ctx, s.retry, func() error {
		_, err := s.query.Exec(ctx, insertSQL, id, recipientID, n.Title, n.Message, string(n.Category), n.LinkTarget, string(payload), n.CreatedAt.UnixMilli())
		return err
	})
	if err != nil {
		return "", fmt.Errorf("sqlite: insert notification: %w", s.errs.MapError(err))
	}
	return id, nil
}

// ListNotifications returns the recipient's feed, newest first.
func (s *Store) ListNotifications(ctx context.Context, recipientID string, limit int) ([]persistence.StoredNotification, error) {
	query := `SELECT id, recipient_id, title, message, category, link_target, payload, created_at
		FROM notifications WHERE recipient_id = ? ORDER BY created_at DESC, rowid DESC`
	args := []any{recipientID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list notifications: %w", s.errs.MapError(err))
	}
	defer rows.Close()

	out := make([]persistence.StoredNotification, 0)
	for rows.Next() {
		var (
			n         persistence.StoredNotification
			category  string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &category, &n.LinkTarget, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan notification: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
			return nil, fmt.Errorf("sqlite: decode notification payload: %w", err)
		}
		n.Category = reminder.Category(category)
		n.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate notifications: %w", err)
	}
	return out, nil
}

func (s *Store) exists(ctx context.Context, id string) error {
	var one int
	err := s.query.QueryRow(ctx, `SELECT 1 FROM task_reminders WHERE id = ?`, id).Scan(&one)
	return s.errs.MapError(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (reminder.Record, error) {
	var (
		rec         reminder.Record
		offsetKind  string
		fireAt      int64
		dueAt       int64
		delivered   int
		deliveredAt sql.NullInt64
	)
	if err := row.Scan(
		&rec.ID,
		&rec.TaskID,
		&rec.RecipientID,
		&offsetKind,
		&fireAt,
		&rec.Snapshot.Title,
		&rec.Snapshot.MeetingLabel,
		&dueAt,
		&delivered,
		&deliveredAt,
		&rec.RetryCount,
		&rec.LastError,
	); err != nil {
		return reminder.Record{}, fmt.Errorf("sqlite: scan reminder: %w", err)
	}

	kind, err := reminder.ParseOffsetKind(offsetKind)
	if err != nil {
		return reminder.Record{}, err
	}
	rec.OffsetKind = kind
	rec.FireAt = time.UnixMilli(fireAt).UTC()
	rec.Snapshot.DueAt = time.UnixMilli(dueAt).UTC()
	rec.Delivered = delivered != 0
	if deliveredAt.Valid {
		at := time.UnixMilli(deliveredAt.Int64).UTC()
		rec.DeliveredAt = &at
	}
	return rec, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nonNilPayload(p map[string]string) map[string]string {
	if p == nil {
		return map[string]string{}
	}
	return p
}

var _ persistence.Store = (*Store)(nil)
