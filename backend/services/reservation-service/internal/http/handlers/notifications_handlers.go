package handlers

import (
	"context"
	"net/http"
)

// NotificationStream upgrades a request to a websocket bound to one session.
type NotificationStream interface {
	Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, session string)
}

// NotificationsHandlers stream toasts to the browser.
type NotificationsHandlers struct {
	stream NotificationStream
}

// NewNotificationsHandlers returns handler.
func NewNotificationsHandlers(stream NotificationStream) *NotificationsHandlers {
	return &NotificationsHandlers{stream: stream}
}

// Stream handles GET /api/notifications/ws. It blocks until the socket closes.
func (h *NotificationsHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.stream.Serve(r.Context(), w, r, sess.Key)
}
