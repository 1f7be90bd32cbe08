// Package http exposes the reminder service over HTTP.
//
// The router exposes the following endpoints:
//   - POST /tasks/{taskID}/reminders: schedules reminders for a task. Body:
//     {"title","meeting_label","due_at"|"due_date"+"due_time","assignees"}.
//     Responds 201 with {"created","skipped"}; a task without a due date
//     responds 200 with {"created":0,"skipped":0}.
//   - POST /tasks/{taskID}/assignments: sends the immediate assignment
//     notification. Body: {"recipient_id","title","meeting_label","due_at"}.
//     Responds 202 with {"task_id","recipient_id","status":"accepted"}.
//   - GET /reminders?recipient_id= or ?task_id=: lists reminder records.
//   - GET /notifications?recipient_id=&limit=: lists a recipient's feed,
//     newest first. Only registered when the feed lives in the store.
//   - POST /admin/sweeps: runs one due-reminder sweep and returns its counts.
//   - POST /admin/cleanups?retention=: runs one retention cleanup and returns
//     {"deleted"}.
//   - GET /healthz and GET /metrics.
//
// Admin routes require "Authorization: Bearer <token>" matching the
// configured argon2id hash. Request/response DTOs live alongside their
// handlers.
package http
