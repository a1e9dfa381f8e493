// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// TeamWebhookStats summarizes one team's subscriptions and their delivery
// history. Computed by store scan; intended for low-frequency management
// queries.
type TeamWebhookStats struct {
	TeamID             string
	TotalSubscriptions int64
	EnabledCount       int64
	ByPlatform         map[Platform]int64
	ByEventType        map[EventType]int64
	TotalSuccesses     int64
	TotalFailures      int64
}

// GlobalWebhookStats summarizes every live subscription in the system.
type GlobalWebhookStats struct {
	TotalSubscriptions int64
	EnabledCount       int64
	WithFailures       int64
	TotalDeliveries    int64
	// SuccessRate is the percentage of recorded deliveries that succeeded,
	// rounded to two decimals. Zero when nothing has been delivered.
	SuccessRate float64
	ByPlatform  map[Platform]int64
}

// TestDeliveryResult reports the outcome of a manual test delivery. Tests
// never touch the subscription counters.
type TestDeliveryResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
	// ResponseTime is the elapsed request time in milliseconds.
	ResponseTime int64  `json:"responseTime"`
	Error        string `json:"error,omitempty"`
}

// NewTeamWebhookStatsFromReader will create a TeamWebhookStats from an
// io.Reader with JSON data.
func NewTeamWebhookStatsFromReader(reader io.Reader) (*TeamWebhookStats, error) {
	var stats TeamWebhookStats
	err := json.NewDecoder(reader).Decode(&stats)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode TeamWebhookStats")
	}

	return &stats, nil
}

// NewGlobalWebhookStatsFromReader will create a GlobalWebhookStats from an
// io.Reader with JSON data.
func NewGlobalWebhookStatsFromReader(reader io.Reader) (*GlobalWebhookStats, error) {
	var stats GlobalWebhookStats
	err := json.NewDecoder(reader).Decode(&stats)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode GlobalWebhookStats")
	}

	return &stats, nil
}

// NewTestDeliveryResultFromReader will create a TestDeliveryResult from an
// io.Reader with JSON data.
func NewTestDeliveryResultFromReader(reader io.Reader) (*TestDeliveryResult, error) {
	var result TestDeliveryResult
	err := json.NewDecoder(reader).Decode(&result)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode TestDeliveryResult")
	}

	return &result, nil
}
