// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// TeamIDHeader carries the acting team on every team-scoped API request. The
// gateway in front of the dispatcher authenticates the caller and sets it.
const TeamIDHeader = "X-Team-ID"

// Client is the programmatic interface to the webhook dispatcher API.
type Client struct {
	address    string
	teamID     string
	httpClient *http.Client
}

// NewClient creates a client to the webhook dispatcher at the given address.
// Team-scoped calls require a team set with WithTeam.
func NewClient(address string) *Client {
	return &Client{
		address:    address,
		httpClient: &http.Client{},
	}
}

// WithTeam returns a copy of the client acting as the given team.
func (c *Client) WithTeam(teamID string) *Client {
	return &Client{
		address:    c.address,
		teamID:     teamID,
		httpClient: c.httpClient,
	}
}

// closeBody ensures the Body of an http.Response is properly closed.
func closeBody(r *http.Response) {
	if r.Body != nil {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	}
}

func (c *Client) buildURL(urlPath string, args ...interface{}) string {
	return fmt.Sprintf("%s%s", c.address, fmt.Sprintf(urlPath, args...))
}

func (c *Client) do(method, u string, request interface{}) (*http.Response, error) {
	var body io.Reader
	if request != nil {
		requestBytes, err := json.Marshal(request)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(requestBytes)
	}

	httpRequest, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, err
	}
	if request != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	if c.teamID != "" {
		httpRequest.Header.Set(TeamIDHeader, c.teamID)
	}

	return c.httpClient.Do(httpRequest)
}

func (c *Client) doGet(u string) (*http.Response, error) {
	return c.do(http.MethodGet, u, nil)
}

func (c *Client) doPost(u string, request interface{}) (*http.Response, error) {
	return c.do(http.MethodPost, u, request)
}

func (c *Client) doPut(u string, request interface{}) (*http.Response, error) {
	return c.do(http.MethodPut, u, request)
}

func (c *Client) doDelete(u string) (*http.Response, error) {
	return c.do(http.MethodDelete, u, nil)
}

// CreateSubscription registers a new webhook subscription. The returned
// record carries the signing secret; it is not shown again.
func (c *Client) CreateSubscription(request *CreateSubscriptionRequest) (*Subscription, error) {
	resp, err := c.doPost(c.buildURL("/api/webhooks/subscriptions"), request)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return NewSubscriptionFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// GetSubscription fetches the given subscription under the client's team.
func (c *Client) GetSubscription(subscriptionID string) (*Subscription, error) {
	resp, err := c.doGet(c.buildURL("/api/webhooks/subscription/%s", subscriptionID))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewSubscriptionFromReader(resp.Body)

	case http.StatusNotFound:
		return nil, nil

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// GetSubscriptions fetches the list of subscriptions under the client's team.
func (c *Client) GetSubscriptions(request *GetSubscriptionsRequest) ([]*Subscription, error) {
	u, err := url.Parse(c.buildURL("/api/webhooks/subscriptions"))
	if err != nil {
		return nil, err
	}

	request.ApplyToURL(u)

	resp, err := c.doGet(u.String())
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewSubscriptionsFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// UpdateSubscription applies a partial update to the given subscription.
func (c *Client) UpdateSubscription(subscriptionID string, request *UpdateSubscriptionRequest) (*Subscription, error) {
	resp, err := c.doPut(c.buildURL("/api/webhooks/subscription/%s", subscriptionID), request)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewSubscriptionFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// DeleteSubscription marks the given subscription as deleted.
func (c *Client) DeleteSubscription(subscriptionID string) error {
	resp, err := c.doDelete(c.buildURL("/api/webhooks/subscription/%s", subscriptionID))
	if err != nil {
		return err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return nil

	default:
		return errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// ToggleSubscription flips the enabled state of the given subscription.
func (c *Client) ToggleSubscription(subscriptionID string) (*Subscription, error) {
	resp, err := c.doPost(c.buildURL("/api/webhooks/subscription/%s/toggle", subscriptionID), nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewSubscriptionFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// SetSubscriptionEnabled sets the enabled state of the given subscription.
func (c *Client) SetSubscriptionEnabled(subscriptionID string, enabled bool) (*Subscription, error) {
	action := "disable"
	if enabled {
		action = "enable"
	}

	resp, err := c.doPut(c.buildURL("/api/webhooks/subscription/%s/%s", subscriptionID, action), nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewSubscriptionFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// RegenerateSubscriptionSecret atomically replaces the signing secret. The
// returned record is the only place the new secret is shown.
func (c *Client) RegenerateSubscriptionSecret(subscriptionID string) (*Subscription, error) {
	resp, err := c.doPost(c.buildURL("/api/webhooks/subscription/%s/secret", subscriptionID), nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewSubscriptionFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// TestSubscription performs a manual test delivery and reports the outcome
// without touching the subscription counters.
func (c *Client) TestSubscription(subscriptionID string) (*TestDeliveryResult, error) {
	resp, err := c.doPost(c.buildURL("/api/webhooks/subscription/%s/test", subscriptionID), nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewTestDeliveryResultFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// GetTeamWebhookStats fetches subscription statistics for the client's team.
func (c *Client) GetTeamWebhookStats() (*TeamWebhookStats, error) {
	resp, err := c.doGet(c.buildURL("/api/webhooks/stats"))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewTeamWebhookStatsFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// GetGlobalWebhookStats fetches system-wide subscription statistics.
func (c *Client) GetGlobalWebhookStats() (*GlobalWebhookStats, error) {
	resp, err := c.doGet(c.buildURL("/api/webhooks/stats/global"))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		return NewGlobalWebhookStatsFromReader(resp.Body)

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// GetEventTypes fetches the catalog of webhook event kinds.
func (c *Client) GetEventTypes() ([]EventType, error) {
	resp, err := c.doGet(c.buildURL("/api/webhooks/events"))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var eventTypes []EventType
		if err := json.NewDecoder(resp.Body).Decode(&eventTypes); err != nil {
			return nil, errors.Wrap(err, "failed to decode event types")
		}
		return eventTypes, nil

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}

// GetPlatforms fetches the catalog of supported subscription platforms.
func (c *Client) GetPlatforms() ([]Platform, error) {
	resp, err := c.doGet(c.buildURL("/api/webhooks/platforms"))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var platforms []Platform
		if err := json.NewDecoder(resp.Body).Decode(&platforms); err != nil {
			return nil, errors.Wrap(err, "failed to decode platforms")
		}
		return platforms, nil

	default:
		return nil, errors.Errorf("failed with status code %d", resp.StatusCode)
	}
}
