package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterConfig lists the handlers to mount. Nil entries are skipped.
type RouterConfig struct {
	Reminders  *ReminderHandler
	Admin      *AdminHandler
	AdminAuth  func(http.Handler) http.Handler
	Health     HealthChecker
	Metrics    http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	if cfg.Reminders != nil {
		r.HandleFunc("/tasks/{taskID}/reminders", cfg.Reminders.Schedule).Methods(http.MethodPost)
		r.HandleFunc("/tasks/{taskID}/assignments", cfg.Reminders.NotifyAssignment).Methods(http.MethodPost)
		r.HandleFunc("/reminders", cfg.Reminders.ListReminders).Methods(http.MethodGet)
		if cfg.Reminders.feed != nil {
			r.HandleFunc("/notifications", cfg.Reminders.ListNotifications).Methods(http.MethodGet)
		}
	}

	if cfg.Admin != nil && cfg.AdminAuth != nil {
		admin := r.PathPrefix("/admin").Subrouter()
		admin.Use(mux.MiddlewareFunc(cfg.AdminAuth))
		admin.HandleFunc("/sweeps", cfg.Admin.Sweep).Methods(http.MethodPost)
		admin.HandleFunc("/cleanups", cfg.Admin.Cleanup).Methods(http.MethodPost)
	}

	r.HandleFunc("/healthz", healthz(cfg.Health)).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics).Methods(http.MethodGet)
	}

	var handler http.Handler = r
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

func healthz(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Ping(r.Context()); err != nil {
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	}
}
