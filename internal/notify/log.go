package notify

import (
	"context"
	"log/slog"
)

// LogTransport writes messages to the logger instead of delivering them.
// The HTML body, which carries secrets, is logged only at debug level.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport returns a transport that logs to logger.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	t.logger.InfoContext(ctx, "email not delivered (log transport)",
		"kind", msg.Kind,
		"to", msg.To,
		"subject", msg.Subject,
	)
	t.logger.DebugContext(ctx, "email body", "to", msg.To, "html", msg.HTML)
	return nil
}
