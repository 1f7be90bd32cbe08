package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/club-reminders/internal/application"
	"github.com/example/club-reminders/internal/persistence"
	"github.com/example/club-reminders/internal/reminder"
)

type reminderScheduler interface {
	Schedule(ctx context.Context, task reminder.Task, assignees []string) (application.ScheduleResult, error)
}

type assignmentNotifier interface {
	NotifyAssignment(ctx context.Context, recipientID string, task reminder.Task) error
}

type reminderReader interface {
	QueryByField(ctx context.Context, field persistence.Field, value any) ([]reminder.Record, error)
}

type notificationReader interface {
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]persistence.StoredNotification, error)
}

// ReminderHandler serves task reminder scheduling and read endpoints.
type ReminderHandler struct {
	scheduler reminderScheduler
	notifier  assignmentNotifier
	reminders reminderReader
	feed      notificationReader
	responder responder
	logger    *slog.Logger
}

// NewReminderHandler wires the handler. feed may be nil when notifications
// are published elsewhere.
func NewReminderHandler(scheduler reminderScheduler, notifier assignmentNotifier, reminders reminderReader, feed notificationReader, logger *slog.Logger) *ReminderHandler {
	base := defaultLogger(logger)
	return &ReminderHandler{
		scheduler: scheduler,
		notifier:  notifier,
		reminders: reminders,
		feed:      feed,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *ReminderHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ReminderHandler", operation, attrs...)
}

type scheduleRequest struct {
	Title        string     `json:"title"`
	MeetingLabel string     `json:"meeting_label"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	DueDate      string     `json:"due_date,omitempty"`
	DueTime      string     `json:"due_time,omitempty"`
	Assignees    []string   `json:"assignees"`
}

func (req scheduleRequest) toTask(taskID string) reminder.Task {
	return reminder.Task{
		ID:           taskID,
		Title:        req.Title,
		MeetingLabel: req.MeetingLabel,
		DueAt:        req.DueAt,
		DueDate:      req.DueDate,
		DueTime:      req.DueTime,
	}
}

type scheduleResponse struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type assignmentRequest struct {
	RecipientID  string     `json:"recipient_id"`
	Title        string     `json:"title"`
	MeetingLabel string     `json:"meeting_label"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	DueDate      string     `json:"due_date,omitempty"`
	DueTime      string     `json:"due_time,omitempty"`
}

type assignmentResponse struct {
	TaskID      string `json:"task_id"`
	RecipientID string `json:"recipient_id"`
	Status      string `json:"status"`
}

type reminderDTO struct {
	ID           string     `json:"id"`
	TaskID       string     `json:"task_id"`
	RecipientID  string     `json:"recipient_id"`
	OffsetKind   string     `json:"offset_kind"`
	FireAt       time.Time  `json:"fire_at"`
	Title        string     `json:"title"`
	MeetingLabel string     `json:"meeting_label"`
	DueAt        time.Time  `json:"due_at"`
	Delivered    bool       `json:"delivered"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	RetryCount   int        `json:"retry_count"`
	LastError    string     `json:"last_error,omitempty"`
}

func toReminderDTO(rec reminder.Record) reminderDTO {
	return reminderDTO{
		ID:           rec.ID,
		TaskID:       rec.TaskID,
		RecipientID:  rec.RecipientID,
		OffsetKind:   string(rec.OffsetKind),
		FireAt:       rec.FireAt,
		Title:        rec.Snapshot.Title,
		MeetingLabel: rec.Snapshot.MeetingLabel,
		DueAt:        rec.Snapshot.DueAt,
		Delivered:    rec.Delivered,
		DeliveredAt:  rec.DeliveredAt,
		RetryCount:   rec.RetryCount,
		LastError:    rec.LastError,
	}
}

type remindersResponse struct {
	Reminders []reminderDTO `json:"reminders"`
}

type notificationDTO struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	LinkTarget string            `json:"link_target"`
	Payload    map[string]string `json:"payload"`
	CreatedAt  time.Time         `json:"created_at"`
}

type notificationsResponse struct {
	Notifications []notificationDTO `json:"notifications"`
}

// Schedule handles POST /tasks/{taskID}/reminders.
func (h *ReminderHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.scheduler == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	taskID := strings.TrimSpace(mux.Vars(r)["taskID"])
	if taskID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTaskID)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Schedule", "task_id", taskID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode schedule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Schedule", "task_id", taskID, "assignees", len(req.Assignees))

	res, err := h.scheduler.Schedule(r.Context(), req.toTask(taskID), req.Assignees)
	if err != nil {
		logger.ErrorContext(r.Context(), "schedule failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	status := http.StatusCreated
	if res.Created == 0 {
		status = http.StatusOK
	}
	h.responder.writeJSON(r.Context(), w, status, scheduleResponse{Created: res.Created, Skipped: res.Skipped})
}

// NotifyAssignment handles POST /tasks/{taskID}/assignments.
func (h *ReminderHandler) NotifyAssignment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.notifier == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	taskID := strings.TrimSpace(mux.Vars(r)["taskID"])
	if taskID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTaskID)
		return
	}

	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "NotifyAssignment", "task_id", taskID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode assignment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	task := reminder.Task{
		ID:           taskID,
		Title:        req.Title,
		MeetingLabel: req.MeetingLabel,
		DueAt:        req.DueAt,
		DueDate:      req.DueDate,
		DueTime:      req.DueTime,
	}
	if err := h.notifier.NotifyAssignment(r.Context(), req.RecipientID, task); err != nil {
		h.log(r.Context(), "NotifyAssignment", "task_id", taskID, "recipient_id", req.RecipientID).
			ErrorContext(r.Context(), "assignment notification failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, assignmentResponse{TaskID: taskID, RecipientID: req.RecipientID, Status: "accepted"})
}

// ListReminders handles GET /reminders?recipient_id= or ?task_id=.
func (h *ReminderHandler) ListReminders(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.reminders == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	recipientID := strings.TrimSpace(query.Get("recipient_id"))
	taskID := strings.TrimSpace(query.Get("task_id"))

	var (
		field persistence.Field
		value string
	)
	switch {
	case recipientID != "" && taskID == "":
		field, value = persistence.FieldRecipientID, recipientID
	case taskID != "" && recipientID == "":
		field, value = persistence.FieldTaskID, taskID
	default:
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingFilter)
		return
	}

	records, err := h.reminders.QueryByField(r.Context(), field, value)
	if err != nil {
		h.log(r.Context(), "ListReminders", "field", field).ErrorContext(r.Context(), "failed to list reminders", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]reminderDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toReminderDTO(rec))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, remindersResponse{Reminders: out})
}

// ListNotifications handles GET /notifications?recipient_id=&limit=.
func (h *ReminderHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.feed == nil {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	recipientID := strings.TrimSpace(query.Get("recipient_id"))
	if recipientID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingRecipient)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = n
	}

	items, err := h.feed.ListNotifications(r.Context(), recipientID, limit)
	if err != nil {
		h.log(r.Context(), "ListNotifications", "recipient_id", recipientID).ErrorContext(r.Context(), "failed to list notifications", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]notificationDTO, 0, len(items))
	for _, n := range items {
		out = append(out, notificationDTO{
			ID:         n.ID,
			Title:      n.Title,
			Message:    n.Message,
			Category:   string(n.Category),
			LinkTarget: n.LinkTarget,
			Payload:    n.Payload,
			CreatedAt:  n.CreatedAt,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, notificationsResponse{Notifications: out})
}
