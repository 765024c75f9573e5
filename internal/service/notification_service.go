package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/outlet-feedback/internal/events"
)

// NotificationService fans workflow events out to the log and, when one is
// configured, to an external sink such as Kafka.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sink       events.EventHandler
}

// NewNotificationService creates the service. sink may be nil.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, sink events.EventHandler) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		sink:       sink,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventFeedbackTransitioned, n.handleFeedbackTransitioned)
	n.dispatcher.Subscribe(events.EventFeedbackAssigned, n.handleFeedbackAssigned)
}

func (n *NotificationService) handleFeedbackTransitioned(ctx context.Context, event events.Event) error {
	n.logger.Info("FeedbackTransitioned", zap.Int64("case_id", event.CaseID), zap.Any("payload", event.Payload))
	return n.forward(ctx, event)
}

func (n *NotificationService) handleFeedbackAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.FeedbackAssignedPayload)
	if ok {
		n.logger.Info("FeedbackAssigned",
			zap.Int64("case_id", event.CaseID),
			zap.String("outlet_code", payload.OutletCode),
			zap.String("officer", payload.AssignedOfficer),
			zap.Bool("manual", payload.Manual))
	} else {
		n.logger.Info("FeedbackAssigned", zap.Int64("case_id", event.CaseID), zap.Any("payload", event.Payload))
	}
	return n.forward(ctx, event)
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	if n.sink == nil {
		return nil
	}
	if err := n.sink(ctx, event); err != nil {
		n.logger.Error("event forward failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("case_id", event.CaseID),
			zap.Error(err))
		return err
	}
	return nil
}
