// Package reputation publishes trade outcome signals. Emission is fire and
// forget: a lost event may skew a score but never blocks or fails a trade.
package reputation

import (
	"context"
	"log/slog"
)

type Event struct {
	EntityID   string            `json:"entity_id"`
	EntityType string            `json:"entity_type"`
	EventType  string            `json:"event_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

const (
	EventTradeCompleted = "trade_completed"
	EventTradeCancelled = "trade_cancelled"
	EventTradeExpired   = "trade_expired"
	EventTradeDisputed  = "trade_disputed"
)

type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// LogEmitter writes events to the log. Stands in until a scoring service
// consumes them.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(ctx context.Context, e Event) {
	l.logger.Info("reputation event",
		"entity_id", e.EntityID,
		"entity_type", e.EntityType,
		"event_type", e.EventType,
	)
}
