// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Platform identifies the automation platform behind a subscription endpoint.
// It only affects which extra request headers are injected on delivery.
type Platform string

const (
	// PlatformZapier is a Zapier hook endpoint.
	PlatformZapier Platform = "zapier"
	// PlatformMake is a Make (formerly Integromat) endpoint.
	PlatformMake Platform = "make"
	// PlatformN8n is an n8n workflow endpoint.
	PlatformN8n Platform = "n8n"
	// PlatformPipedream is a Pipedream source endpoint.
	PlatformPipedream Platform = "pipedream"
	// PlatformCustom is any other HTTP endpoint.
	PlatformCustom Platform = "custom"
)

// Platforms enumerates every supported subscription platform.
var Platforms = []Platform{
	PlatformZapier,
	PlatformMake,
	PlatformN8n,
	PlatformPipedream,
	PlatformCustom,
}

// IsValid returns true if the platform is a known value.
func (p Platform) IsValid() bool {
	for _, platform := range Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

const (
	// SubscriptionNameMaxLength is the longest accepted subscription name.
	SubscriptionNameMaxLength = 128
	// SubscriptionURLMaxLength is the longest accepted target URL.
	SubscriptionURLMaxLength = 2048
	// SubscriptionTeamIDMaxLength is the longest accepted team ID.
	SubscriptionTeamIDMaxLength = 64
	// SubscriptionOwnerIDMaxLength is the longest accepted owner ID.
	SubscriptionOwnerIDMaxLength = 64
	// SubscriptionSecretMinLength is the minimum accepted signing secret length.
	SubscriptionSecretMinLength = 32
	// SubscriptionSecretMaxLength is the longest accepted signing secret.
	SubscriptionSecretMaxLength = 256
	// SubscriptionLastErrorMaxLength bounds the stored last delivery error.
	SubscriptionLastErrorMaxLength = 500
)

// Subscription registers a team-owned webhook endpoint for one event type.
type Subscription struct {
	ID              string
	TeamID          string
	OwnerID         string
	Platform        Platform
	Name            string
	URL             string
	EventType       EventType
	Enabled         bool
	Secret          string
	Filters         *SubscriptionFilter
	Headers         StringMap
	SuccessCount    int64
	FailureCount    int64
	LastTriggeredAt int64
	LastError       *string
	CreateAt        int64
	UpdateAt        int64
	DeleteAt        int64
}

// IsDeleted returns true if the subscription is deleted.
func (s *Subscription) IsDeleted() bool {
	return s.DeleteAt > 0
}

// Sanitize removes the signing secret before the record leaves the service.
func (s *Subscription) Sanitize() {
	s.Secret = ""
}

// SubscriptionsFilter describes the parameters used to constrain a set of
// subscriptions. All lookups are scoped to a single team.
type SubscriptionsFilter struct {
	Paging
	TeamID    string
	Platform  Platform
	EventType EventType
	Enabled   *bool
	Search    string
	SortBy    string
	SortOrder string
}

// NewSubscriptionFromReader will create a Subscription from an
// io.Reader with JSON data.
func NewSubscriptionFromReader(reader io.Reader) (*Subscription, error) {
	var subscription Subscription
	err := json.NewDecoder(reader).Decode(&subscription)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode Subscription")
	}

	return &subscription, nil
}

// NewSubscriptionsFromReader will create a slice of Subscriptions from an
// io.Reader with JSON data.
func NewSubscriptionsFromReader(reader io.Reader) ([]*Subscription, error) {
	subscriptions := []*Subscription{}
	err := json.NewDecoder(reader).Decode(&subscriptions)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode Subscriptions")
	}

	return subscriptions, nil
}
