// Package notify is the push-notification port. Delivery is
// best-effort: callers log failures and move on, a lost push never
// fails the primary operation.
package notify

import (
	"context"
	"log/slog"
)

const (
	TypeAssignment     = "ASSIGNMENT"
	TypeCourierNearby  = "COURIER_NEARBY"
	TypeOutForDelivery = "OUT_FOR_DELIVERY"
)

type Sink interface {
	Push(ctx context.Context, userID uint64, notifType, title, body string, data map[string]string) error
}

// LogSink is the default in-process sink; real deployments wire an
// FCM/APNS gateway behind the same interface.
type LogSink struct{}

func (LogSink) Push(ctx context.Context, userID uint64, notifType, title, body string, data map[string]string) error {
	slog.Info("push notification",
		"user_id", userID, "type", notifType, "title", title, "body", body)
	return nil
}
