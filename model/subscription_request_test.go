// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCreateSubscriptionRequest() *CreateSubscriptionRequest {
	return &CreateSubscriptionRequest{
		TeamID:    "team1",
		OwnerID:   "owner1",
		Name:      "deploy hook",
		URL:       "https://hooks.example.com/abc",
		EventType: EventTypeLinkCreated,
	}
}

func TestCreateSubscriptionRequestToSubscription(t *testing.T) {
	t.Run("valid request applies defaults", func(t *testing.T) {
		subscription, err := validCreateSubscriptionRequest().ToSubscription()
		require.NoError(t, err)

		assert.Equal(t, "team1", subscription.TeamID)
		assert.Equal(t, PlatformCustom, subscription.Platform)
		assert.True(t, subscription.Enabled)
		assert.GreaterOrEqual(t, len(subscription.Secret), SubscriptionSecretMinLength)
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		disabled := false
		request := validCreateSubscriptionRequest()
		request.Platform = PlatformZapier
		request.Enabled = &disabled
		request.Secret = strings.Repeat("s", 40)

		subscription, err := request.ToSubscription()
		require.NoError(t, err)

		assert.Equal(t, PlatformZapier, subscription.Platform)
		assert.False(t, subscription.Enabled)
		assert.Equal(t, strings.Repeat("s", 40), subscription.Secret)
	})

	for _, testCase := range []struct {
		description string
		mutate      func(*CreateSubscriptionRequest)
	}{
		{"missing team", func(r *CreateSubscriptionRequest) { r.TeamID = "" }},
		{"missing name", func(r *CreateSubscriptionRequest) { r.Name = "" }},
		{"name too long", func(r *CreateSubscriptionRequest) { r.Name = strings.Repeat("n", SubscriptionNameMaxLength+1) }},
		{"missing url", func(r *CreateSubscriptionRequest) { r.URL = "" }},
		{"relative url", func(r *CreateSubscriptionRequest) { r.URL = "/hooks/abc" }},
		{"bad scheme", func(r *CreateSubscriptionRequest) { r.URL = "ftp://hooks.example.com" }},
		{"url too long", func(r *CreateSubscriptionRequest) {
			r.URL = "https://hooks.example.com/" + strings.Repeat("a", SubscriptionURLMaxLength)
		}},
		{"unknown event type", func(r *CreateSubscriptionRequest) { r.EventType = "link.exploded" }},
		{"unknown platform", func(r *CreateSubscriptionRequest) { r.Platform = "ifttt" }},
		{"short secret", func(r *CreateSubscriptionRequest) { r.Secret = "tooshort" }},
		{"bad filter operator", func(r *CreateSubscriptionRequest) {
			r.Filters = &SubscriptionFilter{Conditions: []FilterCondition{{Field: "x", Operator: "regex", Value: "y"}}}
		}},
	} {
		t.Run(testCase.description, func(t *testing.T) {
			request := validCreateSubscriptionRequest()
			testCase.mutate(request)

			subscription, err := request.ToSubscription()
			require.Error(t, err)
			require.True(t, IsInvalidInput(err))
			require.Nil(t, subscription)
		})
	}
}

func TestNewCreateSubscriptionRequestFromReader(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		createSubscriptionRequest, err := NewCreateSubscriptionRequestFromReader(bytes.NewReader([]byte(
			"",
		)))
		require.NoError(t, err)
		require.Equal(t, &CreateSubscriptionRequest{}, createSubscriptionRequest)
	})

	t.Run("invalid", func(t *testing.T) {
		createSubscriptionRequest, err := NewCreateSubscriptionRequestFromReader(bytes.NewReader([]byte(
			"{test",
		)))
		require.Error(t, err)
		require.Nil(t, createSubscriptionRequest)
	})

	t.Run("valid", func(t *testing.T) {
		createSubscriptionRequest, err := NewCreateSubscriptionRequestFromReader(bytes.NewReader([]byte(
			`{"name":"test","url":"https://hooks.example.com","platform":"zapier","eventType":"link.created"}`,
		)))
		require.NoError(t, err)
		require.Equal(t, &CreateSubscriptionRequest{
			Name:      "test",
			URL:       "https://hooks.example.com",
			Platform:  PlatformZapier,
			EventType: EventTypeLinkCreated,
		}, createSubscriptionRequest)
	})
}

func TestUpdateSubscriptionRequestApply(t *testing.T) {
	t.Run("no fields is a no-op", func(t *testing.T) {
		subscription, err := validCreateSubscriptionRequest().ToSubscription()
		require.NoError(t, err)

		applied := (&UpdateSubscriptionRequest{}).Apply(subscription)
		assert.False(t, applied)
	})

	t.Run("present fields are merged", func(t *testing.T) {
		subscription, err := validCreateSubscriptionRequest().ToSubscription()
		require.NoError(t, err)

		request := &UpdateSubscriptionRequest{
			Name:    SToP("renamed"),
			URL:     SToP("https://hooks.example.com/v2"),
			Enabled: BToP(false),
			Filters: &SubscriptionFilter{LinkIDs: []string{"L1"}},
		}

		applied := request.Apply(subscription)
		assert.True(t, applied)
		assert.Equal(t, "renamed", subscription.Name)
		assert.Equal(t, "https://hooks.example.com/v2", subscription.URL)
		assert.False(t, subscription.Enabled)
		require.NotNil(t, subscription.Filters)
		assert.Equal(t, []string{"L1"}, subscription.Filters.LinkIDs)

		// Untouched fields survive the merge.
		assert.Equal(t, EventTypeLinkCreated, subscription.EventType)
		require.NoError(t, subscription.Validate())
	})

	t.Run("merged record still validated", func(t *testing.T) {
		subscription, err := validCreateSubscriptionRequest().ToSubscription()
		require.NoError(t, err)

		applied := (&UpdateSubscriptionRequest{URL: SToP("not-a-url")}).Apply(subscription)
		assert.True(t, applied)

		err = subscription.Validate()
		require.Error(t, err)
		require.True(t, IsInvalidInput(err))
	})
}
