// Package events turns lifecycle transitions into real-time developer
// notifications and fans them out to the configured publishers, wrapped in
// the same push envelope Cloud Pub/Sub would deliver.
package events

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/playforge/iap-emulator/internal/domain"
	"github.com/playforge/iap-emulator/internal/domain/ports"
)

// Publisher delivers one serialized push envelope to a sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
}

// PushEnvelope mirrors the body of a Pub/Sub push delivery.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

// PushMessage carries the base64-encoded notification.
type PushMessage struct {
	Data        string `json:"data"`
	MessageID   string `json:"messageId"`
	PublishTime string `json:"publishTime"`
}

// Dispatcher implements ports.NotificationPort over a set of publishers.
// Delivery is best-effort: a failing publisher is logged and the rest
// still receive the event.
type Dispatcher struct {
	publishers   []Publisher
	clock        ports.Clock
	subscription string
	enabled      bool
	logger       *zap.Logger
}

var _ ports.NotificationPort = (*Dispatcher)(nil)

// NewDispatcher builds a dispatcher. With enabled=false every publish is a
// silent success, which lets tests and minimal deployments skip RTDN
// delivery entirely.
func NewDispatcher(publishers []Publisher, clock ports.Clock, subscription string, enabled bool, logger *zap.Logger) *Dispatcher {
	if subscription == "" {
		subscription = "projects/iap-emulator/subscriptions/play-rtdn"
	}
	return &Dispatcher{
		publishers:   publishers,
		clock:        clock,
		subscription: subscription,
		enabled:      enabled,
		logger:       logger,
	}
}

// PublishSubscriptionEvent delivers a subscription lifecycle notification.
func (d *Dispatcher) PublishSubscriptionEvent(ctx context.Context, nt domain.NotificationType, token, subscriptionID, packageName string) bool {
	now := d.clock.NowMillis()
	notification := domain.NewSubscriptionNotification(nt, packageName, token, subscriptionID, now)
	return d.dispatch(ctx, notification, nt.String())
}

// PublishProductEvent delivers a one-time product notification.
func (d *Dispatcher) PublishProductEvent(ctx context.Context, notificationType int, token, sku, packageName string) bool {
	now := d.clock.NowMillis()
	notification := domain.NewOneTimeProductNotification(notificationType, packageName, token, sku, now)
	return d.dispatch(ctx, notification, "ONE_TIME_PRODUCT")
}

// PublishTestEvent delivers the payload used by the test-notification
// endpoint.
func (d *Dispatcher) PublishTestEvent(ctx context.Context, packageName string) bool {
	notification := domain.NewTestNotification(packageName, d.clock.NowMillis())
	return d.dispatch(ctx, notification, "TEST")
}

func (d *Dispatcher) dispatch(ctx context.Context, notification *domain.DeveloperNotification, eventName string) bool {
	if !d.enabled || len(d.publishers) == 0 {
		return true
	}

	payload, err := d.envelope(notification)
	if err != nil {
		d.logger.Error("notification encoding failed",
			zap.String("event", eventName),
			zap.Error(err))
		return false
	}

	ok := true
	for _, publisher := range d.publishers {
		if err := publisher.Publish(ctx, payload); err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("publisher", publisher.Name()),
				zap.String("event", eventName),
				zap.Error(err))
			ok = false
		}
	}
	return ok
}

func (d *Dispatcher) envelope(notification *domain.DeveloperNotification) ([]byte, error) {
	data, err := json.Marshal(notification)
	if err != nil {
		return nil, err
	}
	envelope := PushEnvelope{
		Message: PushMessage{
			Data:        base64.StdEncoding.EncodeToString(data),
			MessageID:   ulid.Make().String(),
			PublishTime: time.UnixMilli(d.clock.NowMillis()).UTC().Format(time.RFC3339),
		},
		Subscription: d.subscription,
	}
	return json.Marshal(envelope)
}
