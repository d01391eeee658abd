package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes notices to the service log. The default sink for
// development and for deployments without a delivery pipeline.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a sink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) NotifyHandler(ctx context.Context, notice HandlerNotice) error {
	s.logger.Info("notify handler",
		zap.String("ticket_id", notice.TicketID),
		zap.String("unit", notice.Unit),
		zap.String("handler_id", notice.HandlerID),
		zap.String("reason", notice.Reason))
	return nil
}

func (s *LogSink) NotifyManualIntervention(ctx context.Context, notice InterventionNotice) error {
	s.logger.Warn("notify manual intervention",
		zap.String("ticket_id", notice.TicketID),
		zap.String("unit", notice.Unit),
		zap.String("reason", notice.Reason))
	return nil
}

func (s *LogSink) NotifyReminder(ctx context.Context, notice ReminderNotice) error {
	s.logger.Info("notify reminder",
		zap.String("ticket_id", notice.TicketID),
		zap.String("handler_id", notice.HandlerID),
		zap.Time("due_at", notice.DueAt))
	return nil
}
