package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/club-reminders/internal/reminder"
)

const defaultAlertCacheSize = 4096

// LogAlerter surfaces alerts as log lines on the host, dropping repeats of
// the same dedupe key within the TTL.
type LogAlerter struct {
	logger *slog.Logger

	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewLogAlerter constructs a LogAlerter. A non-positive ttl keeps keys until
// they are evicted by size.
func NewLogAlerter(logger *slog.Logger, ttl time.Duration) *LogAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl < 0 {
		ttl = 0
	}
	return &LogAlerter{
		logger: logger.With("component", "local_alert"),
		seen:   expirable.NewLRU[string, struct{}](defaultAlertCacheSize, nil, ttl),
	}
}

// Alert logs the notification unless an identical alert was raised recently.
func (a *LogAlerter) Alert(ctx context.Context, recipientID string, n reminder.Notification) error {
	if !a.firstSeen(DedupeKey(recipientID, n)) {
		return nil
	}

	a.logger.InfoContext(ctx, n.Title,
		"recipient_id", recipientID,
		"message", n.Message,
		"category", string(n.Category),
		"link", n.LinkTarget,
	)
	return nil
}

// firstSeen records key and reports whether it was absent.
func (a *LogAlerter) firstSeen(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen.Contains(key) {
		return false
	}
	a.seen.Add(key, struct{}{})
	return true
}
