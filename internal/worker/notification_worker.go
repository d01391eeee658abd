package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/notify"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
	"github.com/spec-kit/helpdesk-engine/internal/service"
)

// StartNotificationWorker picks the configured sink, builds the
// notification service over it, and subscribes it to the dispatcher.
// Anything but the redis sink falls back to structured log output.
func StartNotificationWorker(cfg config.NotifyConfig, dispatcher events.Dispatcher, redis *persistence.Redis, logger *zap.Logger) *service.NotificationService {
	var sink notify.Sink
	switch cfg.Sink {
	case "redis":
		sink = notify.NewRedisSink(redis.Handle(), cfg.Stream)
	default:
		sink = notify.NewLogSink(logger)
	}

	svc := service.NewNotificationService(dispatcher, logger, sink)
	svc.RegisterHandlers()
	logger.Info("notification worker subscribed", zap.String("sink", cfg.Sink))
	return svc
}
