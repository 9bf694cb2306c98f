package driven

import (
	"context"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

// NotificationSender delivers an alert to one channel type (email,
// webhook). Delivery is at-least-once: the engine logs a failed send
// and moves on rather than rolling back the crossing event, so
// implementations should be idempotent on Alert.EventID where the
// destination allows it.
type NotificationSender interface {
	Send(ctx context.Context, destination string, alert model.Alert) error
}
