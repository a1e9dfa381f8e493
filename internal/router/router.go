// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package router

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/shortpoint/webhook-dispatcher/internal/metrics"
	"github.com/shortpoint/webhook-dispatcher/model"
)

const (
	defaultPrefetch        = 10
	defaultMaxRequeueCount = 3

	reconnectInitialInterval = time.Second
	reconnectMaxInterval     = time.Minute

	// A consumer session that survives this long resets the reconnect backoff.
	healthySessionDuration = time.Minute
)

type routerStore interface {
	GetMatchingSubscriptions(teamID string, eventType model.EventType) ([]*model.Subscription, error)
}

type eventDeliverer interface {
	DeliverEvent(ctx context.Context, subscription *model.Subscription, eventType model.EventType, data map[string]interface{}) error
}

// Config holds the bus consumer settings.
type Config struct {
	BusURL           string
	ConsumerPrefetch int
	MaxRequeueCount  int
}

// Router drives the dispatch pipeline from the message bus: it decodes bus
// events, maps them to webhook event kinds, looks up the matching
// subscriptions and fans deliveries out to the delivery engine.
type Router struct {
	store     routerStore
	deliverer eventDeliverer
	metrics   *metrics.DispatcherMetrics
	config    Config
	logger    logrus.FieldLogger
}

// NewRouter creates a Router consuming with the given config.
func NewRouter(store routerStore, deliverer eventDeliverer, dispatcherMetrics *metrics.DispatcherMetrics, logger logrus.FieldLogger, cfg Config) *Router {
	if cfg.ConsumerPrefetch <= 0 {
		cfg.ConsumerPrefetch = defaultPrefetch
	}
	if cfg.MaxRequeueCount <= 0 {
		cfg.MaxRequeueCount = defaultMaxRequeueCount
	}

	return &Router{
		store:     store,
		deliverer: deliverer,
		metrics:   dispatcherMetrics,
		config:    cfg,
		logger:    logger.WithField("component", "router"),
	}
}

// Run consumes bus events until the context is canceled, redialing with
// exponential backoff whenever the connection drops.
func (r *Router) Run(ctx context.Context) error {
	reconnect := backoff.NewExponentialBackOff()
	reconnect.InitialInterval = reconnectInitialInterval
	reconnect.MaxInterval = reconnectMaxInterval
	reconnect.MaxElapsedTime = 0

	for {
		sessionStart := time.Now()

		err := r.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			r.logger.WithError(err).Error("Bus consumer stopped")
		}

		if time.Since(sessionStart) > healthySessionDuration {
			reconnect.Reset()
		}

		wait := reconnect.NextBackOff()
		r.logger.WithField("wait", wait.String()).Info("Reconnecting to the bus")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// consume runs a single consumer session: dial, declare topology, then process
// deliveries until the connection fails or the context is canceled.
func (r *Router) consume(ctx context.Context) error {
	connection, err := amqp.Dial(r.config.BusURL)
	if err != nil {
		return errors.Wrap(err, "failed to connect to the bus")
	}
	defer connection.Close()

	channel, err := connection.Channel()
	if err != nil {
		return errors.Wrap(err, "failed to open a bus channel")
	}
	defer channel.Close()

	err = declareTopology(channel, r.config.ConsumerPrefetch)
	if err != nil {
		return err
	}

	deliveries, err := channel.Consume(queueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to consume from %s", queueName)
	}

	r.logger.WithField("queue", queueName).Info("Consuming bus events")

	for {
		select {
		case <-ctx.Done():
			// Stop pulling new messages; anything left unacked is redelivered
			// by the broker on the next startup.
			if cancelErr := channel.Cancel(consumerTag, false); cancelErr != nil {
				r.logger.WithError(cancelErr).Error("Failed to cancel bus consumer")
			}
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("bus deliveries channel closed")
			}

			// Fan-out runs to its own delivery deadline even during shutdown;
			// the consume loop only stops between messages.
			r.consumeDelivery(context.Background(), delivery)
		}
	}
}

// consumeDelivery processes one bus message and settles it with the broker:
// ack once all fan-out deliveries have completed, requeue transient failures
// below the redelivery bound, dead-letter everything else.
func (r *Router) consumeDelivery(ctx context.Context, delivery amqp.Delivery) {
	err := r.handleMessage(ctx, delivery.Body)
	if err == nil {
		if ackErr := delivery.Ack(false); ackErr != nil {
			r.logger.WithError(ackErr).Error("Failed to ack bus message")
		}
		return
	}

	requeue := model.IsTransient(err) && requeueCount(delivery.Headers) < r.config.MaxRequeueCount
	if requeue {
		r.logger.WithError(err).Warn("Requeueing bus message after processing error")
	} else {
		r.logger.WithError(err).Error("Dead-lettering bus message after repeated processing errors")
	}

	if nackErr := delivery.Nack(false, requeue); nackErr != nil {
		r.logger.WithError(nackErr).Error("Failed to nack bus message")
	}
}

// handleMessage runs the pipeline for one bus message body. A nil return means
// the message is settled and must be acked, including the drop cases: poison
// payloads, unrouted event kinds, events without a team, and individual
// delivery failures. An error is returned only when processing failed before
// fan-out completed and the message is worth redelivering.
func (r *Router) handleMessage(ctx context.Context, body []byte) error {
	event, err := model.NewBusEventFromReader(bytes.NewReader(body))
	if err != nil {
		r.metrics.BusEventsConsumedTotal.WithLabelValues("malformed").Inc()
		r.logger.WithError(err).Warn("Dropping undecodable bus message")
		return nil
	}

	logger := r.logger.WithFields(logrus.Fields{
		"busEvent": event.ID,
		"busType":  event.Type,
	})

	eventType, ok := model.WebhookEventTypeFor(event.Type)
	if !ok {
		r.metrics.BusEventsConsumedTotal.WithLabelValues("unmapped").Inc()
		logger.Debug("Ignoring unrouted bus event type")
		return nil
	}

	teamID := event.TeamID()
	if teamID == "" {
		r.metrics.BusEventsConsumedTotal.WithLabelValues("no_team").Inc()
		logger.Warn("Skipping bus event without a team")
		return nil
	}

	subscriptions, err := r.store.GetMatchingSubscriptions(teamID, eventType)
	if err != nil {
		r.metrics.BusEventsConsumedTotal.WithLabelValues("error").Inc()
		return errors.Wrapf(model.ErrTransient, "failed to look up matching subscriptions: %s", err)
	}

	data := event.ProjectData(eventType)

	matched := 0
	wg := &sync.WaitGroup{}
	for _, subscription := range subscriptions {
		if !subscription.Filters.Matches(data) {
			continue
		}
		matched++

		wg.Add(1)
		go func(subscription *model.Subscription) {
			defer wg.Done()

			// Failures are recorded on the subscription counters and never
			// requeue the source message.
			_ = r.deliverer.DeliverEvent(ctx, subscription, eventType, data)
		}(subscription)
	}
	wg.Wait()

	r.metrics.BusEventsConsumedTotal.WithLabelValues("dispatched").Inc()
	logger.WithFields(logrus.Fields{
		"event":      eventType,
		"deliveries": matched,
	}).Debug("Dispatched bus event")

	return nil
}

func requeueCount(headers amqp.Table) int {
	switch count := headers[retryCountHeader].(type) {
	case int8:
		return int(count)
	case int16:
		return int(count)
	case int32:
		return int(count)
	case int64:
		return int(count)
	}

	return 0
}
