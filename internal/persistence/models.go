package persistence

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/club-reminders/internal/reminder"
)

// Field names a queryable reminder attribute. Only these three are indexed
// by every backend.
type Field string

const (
	FieldTaskID      Field = "taskId"
	FieldRecipientID Field = "recipientId"
	FieldDelivered   Field = "delivered"
)

// Normalize validates the field and coerces value into the Go type the
// backends compare against: string for ids, bool for delivered.
func (f Field) Normalize(value any) (any, error) {
	switch f {
	case FieldTaskID, FieldRecipientID:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrUnsupportedField, f, value)
		}
		return s, nil
	case FieldDelivered:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a bool, got %T", ErrUnsupportedField, f, value)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedField, string(f))
	}
}

// Matches reports whether rec carries the normalized value for the field.
func (f Field) Matches(rec reminder.Record, value any) bool {
	switch f {
	case FieldTaskID:
		return rec.TaskID == value
	case FieldRecipientID:
		return rec.RecipientID == value
	case FieldDelivered:
		return rec.Delivered == value
	default:
		return false
	}
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Delivered   *bool
	DeliveredAt *time.Time
	RetryCount  *int
	LastError   *string
	FireAt      *time.Time
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Delivered == nil && p.DeliveredAt == nil && p.RetryCount == nil && p.LastError == nil && p.FireAt == nil
}

// Apply writes the non-nil fields of the patch onto rec.
func (p Patch) Apply(rec *reminder.Record) {
	if p.Delivered != nil {
		rec.Delivered = *p.Delivered
	}
	if p.DeliveredAt != nil {
		at := reminder.Millis(*p.DeliveredAt)
		rec.DeliveredAt = &at
	}
	if p.RetryCount != nil {
		rec.RetryCount = *p.RetryCount
	}
	if p.LastError != nil {
		rec.LastError = *p.LastError
	}
	if p.FireAt != nil {
		rec.FireAt = reminder.Millis(*p.FireAt)
	}
}

// MarkDelivered builds the patch applied after a successful delivery.
func MarkDelivered(at time.Time) Patch {
	delivered := true
	return Patch{Delivered: &delivered, DeliveredAt: &at}
}

// Reschedule builds the patch applied after a failed delivery that will be retried.
func Reschedule(retryCount int, fireAt time.Time, lastError string) Patch {
	return Patch{RetryCount: &retryCount, FireAt: &fireAt, LastError: &lastError}
}

// ValidateRecord checks the invariants every backend enforces on insert.
func ValidateRecord(rec reminder.Record) error {
	var problems []string
	if strings.TrimSpace(rec.TaskID) == "" {
		problems = append(problems, "taskId is required")
	}
	if strings.TrimSpace(rec.RecipientID) == "" {
		problems = append(problems, "recipientId is required")
	}
	if !rec.OffsetKind.Valid() {
		problems = append(problems, fmt.Sprintf("offsetKind %q is unknown", rec.OffsetKind))
	}
	if rec.FireAt.IsZero() {
		problems = append(problems, "fireAt is required")
	}
	if rec.RetryCount < 0 {
		problems = append(problems, "retryCount must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConstraintViolation, strings.Join(problems, ", "))
	}
	return nil
}

// StoredNotification is a notification persisted in a recipient's feed.
type StoredNotification struct {
	ID          string
	RecipientID string
	reminder.Notification
}

// Clone returns a copy that does not share the payload map.
func (n StoredNotification) Clone() StoredNotification {
	clone := n
	clone.Notification = n.Notification.Clone()
	return clone
}
