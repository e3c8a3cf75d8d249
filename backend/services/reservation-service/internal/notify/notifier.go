package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"swapstation/backend/services/reservation-service/internal/metrics"
	"swapstation/backend/services/reservation-service/internal/models"
)

// Notifier delivers toasts. Delivery is best-effort and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n models.Notification)

// Notify calls f.
func (f Func) Notify(ctx context.Context, n models.Notification) { f(ctx, n) }

// Multi fans a notification out to every non-nil notifier.
func Multi(notifiers ...Notifier) Notifier {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return multi(out)
}

type multi []Notifier

func (m multi) Notify(ctx context.Context, n models.Notification) {
	for _, target := range m {
		target.Notify(ctx, n)
	}
}

// LogNotifier writes notifications to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns log-backed notifier. Fields are attached to every entry.
func NewLogNotifier(logger *zap.Logger, fields ...zap.Field) *LogNotifier {
	return &LogNotifier{logger: logger.With(fields...)}
}

// Notify logs n; error toasts are logged at warn level.
func (l *LogNotifier) Notify(_ context.Context, n models.Notification) {
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("title", n.Title),
		zap.String("description", n.Description),
	}
	switch n.Kind {
	case models.NotificationError, models.NotificationWarning:
		l.logger.Warn("driver notified", fields...)
	default:
		l.logger.Info("driver notified", fields...)
	}
}

// MetricsNotifier counts notifications by kind.
type MetricsNotifier struct {
	metrics *metrics.Metrics
}

// NewMetricsNotifier returns counting notifier.
func NewMetricsNotifier(m *metrics.Metrics) *MetricsNotifier {
	return &MetricsNotifier{metrics: m}
}

// Notify increments the kind counter.
func (m *MetricsNotifier) Notify(_ context.Context, n models.Notification) {
	m.metrics.ObserveNotification(string(n.Kind))
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu    sync.Mutex
	items []models.Notification
}

// Notify appends n.
func (r *Recorder) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (models.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return models.Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}
