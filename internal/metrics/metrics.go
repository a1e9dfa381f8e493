// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dispatcherNamespace       = "dispatcher"
	dispatcherSubsystemRouter = "router"
	dispatcherSubsystemHooks  = "webhook"
	dispatcherSubsystemAPI    = "api"
)

// DispatcherMetrics holds all of the metrics needed to properly instrument
// the webhook dispatcher.
type DispatcherMetrics struct {
	BusEventsConsumedTotal *prometheus.CounterVec
	DeliveriesTotal        *prometheus.CounterVec
	DeliveryDurationHist   *prometheus.HistogramVec
	DeliveriesInFlight     prometheus.Gauge
	TestDeliveriesTotal    *prometheus.CounterVec

	APIRequestsTotal        prometheus.Counter
	APIEndpointDurationHist *prometheus.HistogramVec
}

// New creates a new Prometheus-based Metrics object to be used throughout the
// dispatcher in order to record various performance metrics.
func New() *DispatcherMetrics {
	return &DispatcherMetrics{
		BusEventsConsumedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: dispatcherNamespace,
				Subsystem: dispatcherSubsystemRouter,
				Name:      "bus_events_consumed_total",
				Help:      "The number of bus messages consumed, by processing result",
			},
			[]string{"result"},
		),

		DeliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: dispatcherNamespace,
				Subsystem: dispatcherSubsystemHooks,
				Name:      "deliveries_total",
				Help:      "The number of webhook delivery attempts, by platform and outcome",
			},
			[]string{"platform", "status"},
		),

		DeliveryDurationHist: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: dispatcherNamespace,
				Subsystem: dispatcherSubsystemHooks,
				Name:      "delivery_duration_seconds",
				Help:      "The duration of webhook delivery requests",
				Buckets:   deliveryDurationBuckets(),
			},
			[]string{"platform"},
		),

		DeliveriesInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: dispatcherNamespace,
				Subsystem: dispatcherSubsystemHooks,
				Name:      "deliveries_in_flight",
				Help:      "The number of webhook delivery requests currently awaiting a response",
			},
		),

		TestDeliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: dispatcherNamespace,
				Subsystem: dispatcherSubsystemHooks,
				Name:      "test_deliveries_total",
				Help:      "The number of manual test deliveries, by outcome",
			},
			[]string{"status"},
		),

		APIRequestsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: dispatcherNamespace,
				Subsystem: dispatcherSubsystemAPI,
				Name:      "requests_total",
				Help:      "The number of API requests served",
			},
		),

		APIEndpointDurationHist: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: dispatcherNamespace,
				Subsystem: dispatcherSubsystemAPI,
				Name:      "endpoint_duration_seconds",
				Help:      "The duration of API requests, by endpoint, method and status code",
				Buckets:   apiDurationBuckets(),
			},
			[]string{"endpoint", "method", "status_code"},
		),
	}
}

// IncrementAPIRequest counts one served API request.
func (m *DispatcherMetrics) IncrementAPIRequest() {
	m.APIRequestsTotal.Inc()
}

// ObserveAPIEndpointDuration records the elapsed seconds of one API request.
func (m *DispatcherMetrics) ObserveAPIEndpointDuration(endpoint, method string, statusCode int, elapsed float64) {
	m.APIEndpointDurationHist.
		WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).
		Observe(elapsed)
}

// Sub-second buckets for endpoint round trips, tailing off at the 30s delivery deadline.
func deliveryDurationBuckets() []float64 {
	return []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}
}

func apiDurationBuckets() []float64 {
	return []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
}
