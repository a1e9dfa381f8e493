// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package api_test

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shortpoint/webhook-dispatcher/internal/metrics"
	"github.com/shortpoint/webhook-dispatcher/model"
)

// testMetrics is shared across the package tests, as the prometheus metrics
// may only be registered once per process.
var testMetrics = metrics.New()

type mockDeliverer struct {
	result *model.TestDeliveryResult
	sent   []*model.Subscription
}

func (d *mockDeliverer) SendTest(ctx context.Context, subscription *model.Subscription) *model.TestDeliveryResult {
	d.sent = append(d.sent, subscription)
	if d.result != nil {
		return d.result
	}

	return &model.TestDeliveryResult{Success: true, StatusCode: http.StatusOK}
}

// doRequest issues a raw request with the team header set, for the cases the
// typed client can't produce.
func doRequest(t *testing.T, method, url, teamID string, body io.Reader) *http.Response {
	request, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if teamID != "" {
		request.Header.Set(model.TeamIDHeader, teamID)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(request)
	require.NoError(t, err)

	return resp
}

func sToP(s string) *string {
	return &s
}

func bToP(b bool) *bool {
	return &b
}
