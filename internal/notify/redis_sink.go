package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink appends notices to a Redis Stream for downstream delivery
// workers (mail, chat, paging) to consume.
type RedisSink struct {
	client *redis.Client
	stream string
}

// NewRedisSink builds a sink writing to the given stream.
func NewRedisSink(client *redis.Client, stream string) *RedisSink {
	return &RedisSink{client: client, stream: stream}
}

func (s *RedisSink) NotifyHandler(ctx context.Context, notice HandlerNotice) error {
	return s.add(ctx, "handler", map[string]interface{}{
		"ticket_id":   notice.TicketID,
		"unit":        notice.Unit,
		"handler_id":  notice.HandlerID,
		"reason":      notice.Reason,
		"occurred_at": notice.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *RedisSink) NotifyManualIntervention(ctx context.Context, notice InterventionNotice) error {
	return s.add(ctx, "manual_intervention", map[string]interface{}{
		"ticket_id":   notice.TicketID,
		"unit":        notice.Unit,
		"reason":      notice.Reason,
		"occurred_at": notice.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *RedisSink) NotifyReminder(ctx context.Context, notice ReminderNotice) error {
	return s.add(ctx, "reminder", map[string]interface{}{
		"ticket_id":   notice.TicketID,
		"handler_id":  notice.HandlerID,
		"due_at":      notice.DueAt.UTC().Format(time.RFC3339Nano),
		"occurred_at": notice.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *RedisSink) add(ctx context.Context, kind string, values map[string]interface{}) error {
	values["kind"] = kind
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}).Err()
}
