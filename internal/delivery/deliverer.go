// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/shortpoint/webhook-dispatcher/internal/metrics"
	"github.com/shortpoint/webhook-dispatcher/model"
)

const (
	contentTypeApplicationJSON = "application/json"

	defaultDeliveryTimeout = 30 * time.Second
	defaultTestTimeout     = 10 * time.Second

	// Redirects are followed without re-signing; the signature binds the body, not the hop URL.
	maxRedirects = 3

	// Endpoint responses are drained for connection reuse but never stored.
	maxDrainBytes = 64 * 1024

	// testBanner is the fixed message carried by manual test deliveries.
	testBanner = "This is a test delivery from the webhook dispatcher."
)

type delivererStore interface {
	RecordDeliverySuccess(subscriptionID string) error
	RecordDeliveryFailure(subscriptionID, deliveryError string) error
}

// Config holds the delivery engine settings.
type Config struct {
	DeliveryTimeout time.Duration
	TestTimeout     time.Duration
	DefaultSecret   string
}

// Deliverer posts signed webhook envelopes to subscription endpoints and records the outcome
// on the subscription counters. It is stateless per call and safe for concurrent use.
type Deliverer struct {
	store         delivererStore
	client        *http.Client
	testClient    *http.Client
	metrics       *metrics.DispatcherMetrics
	defaultSecret string
	logger        logrus.FieldLogger
}

// NewDeliverer creates a Deliverer using the given store for recording outcomes.
func NewDeliverer(store delivererStore, dispatcherMetrics *metrics.DispatcherMetrics, logger logrus.FieldLogger, cfg Config) *Deliverer {
	logger = logger.WithField("component", "delivery")

	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = defaultTestTimeout
	}

	defaultSecret := cfg.DefaultSecret
	if defaultSecret == "" {
		secret, err := model.NewWebhookSecret()
		if err != nil {
			logger.WithError(err).Fatal("Failed to generate fallback webhook secret")
		}
		defaultSecret = secret
		logger.Warn("No default webhook secret configured; generated a random per-process secret")
	}

	return &Deliverer{
		store: store,
		client: &http.Client{
			Timeout:       cfg.DeliveryTimeout,
			CheckRedirect: limitRedirects,
		},
		testClient: &http.Client{
			Timeout:       cfg.TestTimeout,
			CheckRedirect: limitRedirects,
		},
		metrics:       dispatcherMetrics,
		defaultSecret: defaultSecret,
		logger:        logger,
	}
}

// DeliverEvent builds the signed envelope for the subscription and posts it to the endpoint.
// The outcome is recorded on the subscription's counters. A returned error is final; retrying
// failed deliveries is not this component's concern.
func (d *Deliverer) DeliverEvent(ctx context.Context, subscription *model.Subscription, eventType model.EventType, data map[string]interface{}) error {
	logger := d.logger.WithFields(logrus.Fields{
		"subscription": subscription.ID,
		"event":        eventType,
	})

	envelope := d.buildEnvelope(subscription, eventType, data)

	statusCode, elapsed, err := d.send(ctx, d.client, subscription, envelope, false)
	d.metrics.DeliveryDurationHist.WithLabelValues(string(subscription.Platform)).Observe(elapsed.Seconds())
	if err != nil {
		d.metrics.DeliveriesTotal.WithLabelValues(string(subscription.Platform), "failure").Inc()
		logger.WithError(err).Warn("Failed to deliver webhook")

		if recordErr := d.store.RecordDeliveryFailure(subscription.ID, err.Error()); recordErr != nil {
			logger.WithError(recordErr).Error("Failed to record delivery failure")
		}

		return err
	}

	d.metrics.DeliveriesTotal.WithLabelValues(string(subscription.Platform), "success").Inc()
	logger.WithField("statusCode", statusCode).Debug("Delivered webhook")

	if err = d.store.RecordDeliverySuccess(subscription.ID); err != nil {
		logger.WithError(err).Error("Failed to record delivery success")
	}

	return nil
}

// SendTest posts a signed test envelope to the subscription endpoint, reporting the outcome to
// the caller without touching the delivery counters.
func (d *Deliverer) SendTest(ctx context.Context, subscription *model.Subscription) *model.TestDeliveryResult {
	envelope := d.buildEnvelope(subscription, subscription.EventType, map[string]interface{}{
		"test":    true,
		"message": testBanner,
	})

	statusCode, elapsed, err := d.send(ctx, d.testClient, subscription, envelope, true)

	result := &model.TestDeliveryResult{
		Success:      err == nil,
		StatusCode:   statusCode,
		ResponseTime: elapsed.Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
		d.metrics.TestDeliveriesTotal.WithLabelValues("failure").Inc()
	} else {
		d.metrics.TestDeliveriesTotal.WithLabelValues("success").Inc()
	}

	return result
}

func (d *Deliverer) buildEnvelope(subscription *model.Subscription, eventType model.EventType, data map[string]interface{}) *model.WebhookEnvelope {
	return &model.WebhookEnvelope{
		Event:     eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TeamID:    subscription.TeamID,
		WebhookID: subscription.ID,
	}
}

// send posts the envelope and reports the response status and elapsed time. A response outside
// [200, 300) counts as a failure, as does any transport error or timeout.
func (d *Deliverer) send(ctx context.Context, client *http.Client, subscription *model.Subscription, envelope *model.WebhookEnvelope, test bool) (int, time.Duration, error) {
	body, err := envelope.ToJSON()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to marshal webhook envelope")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, subscription.URL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, errors.Wrap(err, "unable to create request from envelope")
	}

	// Subscription extra headers go first; the protocol headers below always win.
	for key, value := range subscription.Headers {
		req.Header.Set(key, value)
	}

	secret := subscription.Secret
	if secret == "" {
		secret = d.defaultSecret
	}

	req.Header.Set("Content-Type", contentTypeApplicationJSON)
	req.Header.Set(model.HeaderWebhookSignature, model.SignBody(body, secret))
	req.Header.Set(model.HeaderWebhookEvent, string(envelope.Event))
	req.Header.Set(model.HeaderWebhookID, subscription.ID)
	req.Header.Set(model.HeaderWebhookTimestamp, envelope.Timestamp)
	req.Header.Set(model.HeaderWebhookDelivery, uuid.NewString())
	if test {
		req.Header.Set(model.HeaderWebhookTest, "true")
	}

	switch subscription.Platform {
	case model.PlatformMake:
		req.Header.Set("X-Make-Request", "true")
	case model.PlatformN8n:
		req.Header.Set("X-N8N-Request", "true")
	}

	d.metrics.DeliveriesInFlight.Inc()
	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	d.metrics.DeliveriesInFlight.Dec()
	if err != nil {
		return 0, elapsed, errors.Wrap(err, "failed to reach webhook endpoint")
	}
	defer drainBody(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, elapsed, errors.Wrapf(model.ErrDeliveryFailure, "unexpected status code %d", resp.StatusCode)
	}

	return resp.StatusCode, elapsed, nil
}

func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.Errorf("stopped after %d redirects", maxRedirects)
	}
	return nil
}

func drainBody(readCloser io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(readCloser, maxDrainBytes))
	_ = readCloser.Close()
}
