package notify

import (
	"context"
	"log/slog"
)

// NewConsoleSender returns a Sender that writes the message to the log
// instead of a real provider. It stands in for SMS/push gateways in
// development and single-box deployments.
func NewConsoleSender(kind string) Sender {
	return SenderFunc(func(ctx context.Context, recipient, body string) error {
		slog.InfoContext(ctx, "notification", "channel", kind, "to", recipient, "body", body)
		return nil
	})
}
