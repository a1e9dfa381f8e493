// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortpoint/webhook-dispatcher/internal/metrics"
	"github.com/shortpoint/webhook-dispatcher/internal/store"
	"github.com/shortpoint/webhook-dispatcher/internal/testlib"
	"github.com/shortpoint/webhook-dispatcher/model"
)

// Prometheus collectors register against the default registry, so the package's
// tests share one metrics instance.
var testMetrics = metrics.New()

type capturedRequest struct {
	method string
	header http.Header
	body   []byte
}

type captureHandler struct {
	mu       sync.Mutex
	status   int
	requests []capturedRequest
}

func newCaptureHandler(status int) *captureHandler {
	return &captureHandler{status: status}
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	h.mu.Lock()
	h.requests = append(h.requests, capturedRequest{
		method: r.Method,
		header: r.Header.Clone(),
		body:   body,
	})
	status := h.status
	h.mu.Unlock()

	w.WriteHeader(status)
}

func (h *captureHandler) last(t *testing.T) capturedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()

	require.NotEmpty(t, h.requests)
	return h.requests[len(h.requests)-1]
}

func testSubscription(url string) *model.Subscription {
	return &model.Subscription{
		TeamID:    "team1",
		OwnerID:   "owner1",
		Platform:  model.PlatformCustom,
		Name:      "Deal alerts",
		URL:       url,
		EventType: model.EventTypeLinkCreated,
		Enabled:   true,
		Secret:    "0123456789abcdef0123456789abcdef",
	}
}

func createTestSubscription(t *testing.T, sqlStore *store.SQLStore, subscription *model.Subscription) *model.Subscription {
	require.NoError(t, sqlStore.CreateSubscription(subscription))
	return subscription
}

func TestDeliverEvent(t *testing.T) {
	logger := testlib.MakeLogger(t)
	sqlStore := store.MakeTestSQLStore(t, logger)
	defer store.CloseConnection(t, sqlStore)

	handler := newCaptureHandler(http.StatusOK)
	server := httptest.NewServer(handler)
	defer server.Close()

	deliverer := NewDeliverer(sqlStore, testMetrics, logger, Config{})

	t.Run("signs and posts the envelope", func(t *testing.T) {
		subscription := createTestSubscription(t, sqlStore, testSubscription(server.URL))

		data := map[string]interface{}{"url": "https://sp.co/abc123", "slug": "abc123"}
		err := deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, data)
		require.NoError(t, err)

		request := handler.last(t)
		assert.Equal(t, http.MethodPost, request.method)
		assert.Equal(t, "application/json", request.header.Get("Content-Type"))
		assert.Equal(t, "link.created", request.header.Get(model.HeaderWebhookEvent))
		assert.Equal(t, subscription.ID, request.header.Get(model.HeaderWebhookID))
		assert.NotEmpty(t, request.header.Get(model.HeaderWebhookDelivery))
		assert.Empty(t, request.header.Get(model.HeaderWebhookTest))
		assert.True(t, model.VerifySignature(request.body, subscription.Secret, request.header.Get(model.HeaderWebhookSignature)))

		var envelope model.WebhookEnvelope
		require.NoError(t, json.Unmarshal(request.body, &envelope))
		assert.Equal(t, model.EventTypeLinkCreated, envelope.Event)
		assert.Equal(t, subscription.TeamID, envelope.TeamID)
		assert.Equal(t, subscription.ID, envelope.WebhookID)
		assert.Equal(t, "abc123", envelope.Data["slug"])

		timestamp, err := time.Parse(time.RFC3339, envelope.Timestamp)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), timestamp, time.Minute)
		assert.Equal(t, envelope.Timestamp, request.header.Get(model.HeaderWebhookTimestamp))

		fetched, err := sqlStore.GetSubscription(subscription.ID, subscription.TeamID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, fetched.SuccessCount)
		assert.EqualValues(t, 0, fetched.FailureCount)
		assert.NotZero(t, fetched.LastTriggeredAt)
		assert.Nil(t, fetched.LastError)
	})

	t.Run("extra headers are forwarded but cannot shadow reserved ones", func(t *testing.T) {
		subscription := testSubscription(server.URL)
		subscription.Headers = model.StringMap{
			"X-Api-Key":       "s3kret",
			"X-Webhook-Event": "spoofed.kind",
			"Content-Type":    "text/plain",
		}
		createTestSubscription(t, sqlStore, subscription)

		err := deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkClicked, nil)
		require.NoError(t, err)

		request := handler.last(t)
		assert.Equal(t, "s3kret", request.header.Get("X-Api-Key"))
		assert.Equal(t, "link.clicked", request.header.Get(model.HeaderWebhookEvent))
		assert.Equal(t, "application/json", request.header.Get("Content-Type"))
	})

	t.Run("platform header", func(t *testing.T) {
		for _, testCase := range []struct {
			platform model.Platform
			header   string
		}{
			{model.PlatformMake, "X-Make-Request"},
			{model.PlatformN8n, "X-N8N-Request"},
		} {
			t.Run(string(testCase.platform), func(t *testing.T) {
				subscription := testSubscription(server.URL)
				subscription.Platform = testCase.platform
				createTestSubscription(t, sqlStore, subscription)

				require.NoError(t, deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, nil))
				assert.Equal(t, "true", handler.last(t).header.Get(testCase.header))
			})
		}

		t.Run("custom", func(t *testing.T) {
			subscription := createTestSubscription(t, sqlStore, testSubscription(server.URL))

			require.NoError(t, deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, nil))

			request := handler.last(t)
			assert.Empty(t, request.header.Get("X-Make-Request"))
			assert.Empty(t, request.header.Get("X-N8N-Request"))
		})
	})

	t.Run("endpoint rejection is recorded", func(t *testing.T) {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}))
		defer failing.Close()

		subscription := createTestSubscription(t, sqlStore, testSubscription(failing.URL))

		err := deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status code 500")

		fetched, err := sqlStore.GetSubscription(subscription.ID, subscription.TeamID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, fetched.SuccessCount)
		assert.EqualValues(t, 1, fetched.FailureCount)
		require.NotNil(t, fetched.LastError)
		assert.Contains(t, *fetched.LastError, "unexpected status code 500")
	})

	t.Run("unreachable endpoint is recorded", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		down.Close()

		subscription := createTestSubscription(t, sqlStore, testSubscription(down.URL))

		err := deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, nil)
		require.Error(t, err)

		fetched, err := sqlStore.GetSubscription(subscription.ID, subscription.TeamID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, fetched.FailureCount)
		require.NotNil(t, fetched.LastError)
	})

	t.Run("success clears a previous delivery error", func(t *testing.T) {
		subscription := createTestSubscription(t, sqlStore, testSubscription(server.URL))
		require.NoError(t, sqlStore.RecordDeliveryFailure(subscription.ID, "unexpected status code 503"))

		require.NoError(t, deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, nil))

		fetched, err := sqlStore.GetSubscription(subscription.ID, subscription.TeamID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, fetched.SuccessCount)
		assert.Nil(t, fetched.LastError)
	})

	t.Run("follows redirects without re-signing", func(t *testing.T) {
		final := newCaptureHandler(http.StatusOK)
		mux := http.NewServeMux()
		mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/final", http.StatusTemporaryRedirect)
		})
		mux.Handle("/final", final)
		redirecting := httptest.NewServer(mux)
		defer redirecting.Close()

		subscription := createTestSubscription(t, sqlStore, testSubscription(redirecting.URL+"/hop"))

		err := deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, nil)
		require.NoError(t, err)

		request := final.last(t)
		assert.True(t, model.VerifySignature(request.body, subscription.Secret, request.header.Get(model.HeaderWebhookSignature)))
	})

	t.Run("gives up after the redirect budget", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/loop", http.StatusTemporaryRedirect)
		})
		looping := httptest.NewServer(mux)
		defer looping.Close()

		subscription := createTestSubscription(t, sqlStore, testSubscription(looping.URL+"/loop"))

		err := deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stopped after 3 redirects")

		fetched, err := sqlStore.GetSubscription(subscription.ID, subscription.TeamID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, fetched.FailureCount)
	})
}

func TestDeliveryDefaultSecret(t *testing.T) {
	logger := testlib.MakeLogger(t)
	sqlStore := store.MakeTestSQLStore(t, logger)
	defer store.CloseConnection(t, sqlStore)

	handler := newCaptureHandler(http.StatusOK)
	server := httptest.NewServer(handler)
	defer server.Close()

	t.Run("configured default signs secretless subscriptions", func(t *testing.T) {
		deliverer := NewDeliverer(sqlStore, testMetrics, logger, Config{
			DefaultSecret: "fallback-fallback-fallback-secret",
		})

		subscription := testSubscription(server.URL)
		subscription.ID = model.NewID()
		subscription.Secret = ""

		err := deliverer.DeliverEvent(context.Background(), subscription, model.EventTypeLinkCreated, nil)
		require.NoError(t, err)

		request := handler.last(t)
		assert.True(t, model.VerifySignature(request.body, "fallback-fallback-fallback-secret", request.header.Get(model.HeaderWebhookSignature)))
	})

	t.Run("missing default is generated at startup", func(t *testing.T) {
		deliverer := NewDeliverer(sqlStore, testMetrics, logger, Config{})

		assert.NotEmpty(t, deliverer.defaultSecret)
		assert.GreaterOrEqual(t, len(deliverer.defaultSecret), model.SubscriptionSecretMinLength)
	})
}

func TestSendTest(t *testing.T) {
	logger := testlib.MakeLogger(t)
	sqlStore := store.MakeTestSQLStore(t, logger)
	defer store.CloseConnection(t, sqlStore)

	handler := newCaptureHandler(http.StatusOK)
	server := httptest.NewServer(handler)
	defer server.Close()

	deliverer := NewDeliverer(sqlStore, testMetrics, logger, Config{})

	t.Run("success", func(t *testing.T) {
		subscription := createTestSubscription(t, sqlStore, testSubscription(server.URL))

		result := deliverer.SendTest(context.Background(), subscription)
		require.NotNil(t, result)
		assert.True(t, result.Success)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.GreaterOrEqual(t, result.ResponseTime, int64(0))
		assert.Empty(t, result.Error)

		request := handler.last(t)
		assert.Equal(t, "true", request.header.Get(model.HeaderWebhookTest))
		assert.True(t, model.VerifySignature(request.body, subscription.Secret, request.header.Get(model.HeaderWebhookSignature)))

		var envelope model.WebhookEnvelope
		require.NoError(t, json.Unmarshal(request.body, &envelope))
		assert.Equal(t, subscription.EventType, envelope.Event)
		assert.Equal(t, true, envelope.Data["test"])
		assert.Equal(t, testBanner, envelope.Data["message"])

		fetched, err := sqlStore.GetSubscription(subscription.ID, subscription.TeamID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, fetched.SuccessCount)
		assert.EqualValues(t, 0, fetched.FailureCount)
		assert.Zero(t, fetched.LastTriggeredAt)
	})

	t.Run("failing endpoint", func(t *testing.T) {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer failing.Close()

		subscription := createTestSubscription(t, sqlStore, testSubscription(failing.URL))

		result := deliverer.SendTest(context.Background(), subscription)
		require.NotNil(t, result)
		assert.False(t, result.Success)
		assert.Equal(t, http.StatusNotFound, result.StatusCode)
		assert.Contains(t, result.Error, "unexpected status code 404")

		fetched, err := sqlStore.GetSubscription(subscription.ID, subscription.TeamID)
		require.NoError(t, err)
		assert.EqualValues(t, 0, fetched.SuccessCount)
		assert.EqualValues(t, 0, fetched.FailureCount)
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		down.Close()

		subscription := createTestSubscription(t, sqlStore, testSubscription(down.URL))

		result := deliverer.SendTest(context.Background(), subscription)
		require.NotNil(t, result)
		assert.False(t, result.Success)
		assert.Zero(t, result.StatusCode)
		assert.NotEmpty(t, result.Error)
	})
}
