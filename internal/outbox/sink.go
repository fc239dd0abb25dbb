package outbox

import (
	"context"
	"log/slog"

	"lv-escrow/internal/model"
)

// Sink delivers one notification to its destination. Implementations must
// tolerate duplicates: the worker guarantees at-least-once, not exactly-once.
type Sink interface {
	Deliver(ctx context.Context, n model.OutboxNotification) error
}

// LogSink writes notifications to the log. Stands in until a real broker or
// webhook target is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// DisabledSink drops notifications. Used when no downstream consumer is
// configured; rows are still marked sent so the table does not grow unbounded.
type DisabledSink struct{}

func (DisabledSink) Deliver(ctx context.Context, n model.OutboxNotification) error {
	return nil
}

func (s *LogSink) Deliver(ctx context.Context, n model.OutboxNotification) error {
	s.logger.Info("notification delivered",
		"id", n.ID,
		"trade_id", n.TradeID,
		"topic", n.Topic,
		"payload", string(n.Payload),
	)
	return nil
}
