package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/outlet-feedback/internal/config"
	"github.com/spec-kit/outlet-feedback/internal/events"
	"github.com/spec-kit/outlet-feedback/internal/service"
)

// StartNotificationWorker wires the notification handlers onto dispatcher.
// When Kafka brokers are configured events are also produced to the topic;
// the returned stop func closes the producer.
func StartNotificationWorker(dispatcher events.Dispatcher, cfg config.KafkaConfig, logger *zap.Logger) (*service.NotificationService, func(context.Context) error, error) {
	var (
		sink events.EventHandler
		stop = func(context.Context) error { return nil }
	)
	if len(cfg.Brokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(cfg)
		if err != nil {
			return nil, nil, err
		}
		sink = kafkaSink.Handle
		stop = func(context.Context) error { return kafkaSink.Close() }
		logger.Info("kafka event sink enabled", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	}
	notifications := service.NewNotificationService(dispatcher, logger, sink)
	notifications.RegisterHandlers()
	return notifications, stop, nil
}
