// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"encoding/json"
	"io"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

// CreateSubscriptionRequest specifies the parameters for a new subscription.
type CreateSubscriptionRequest struct {
	TeamID    string
	OwnerID   string
	Platform  Platform
	Name      string
	URL       string
	EventType EventType
	Enabled   *bool
	Secret    string
	Filters   *SubscriptionFilter
	Headers   StringMap
}

// ToSubscription validates the request and converts it to a subscription.
// A missing secret is generated, a missing platform defaults to custom, and
// subscriptions are enabled unless the request says otherwise.
func (request *CreateSubscriptionRequest) ToSubscription() (*Subscription, error) {
	subscription := Subscription{
		TeamID:    request.TeamID,
		OwnerID:   request.OwnerID,
		Platform:  request.Platform,
		Name:      request.Name,
		URL:       request.URL,
		EventType: request.EventType,
		Enabled:   true,
		Secret:    request.Secret,
		Filters:   request.Filters,
		Headers:   request.Headers,
	}
	if request.Enabled != nil {
		subscription.Enabled = *request.Enabled
	}
	if subscription.Platform == "" {
		subscription.Platform = PlatformCustom
	}
	if subscription.Secret == "" {
		secret, err := NewWebhookSecret()
		if err != nil {
			return nil, err
		}
		subscription.Secret = secret
	}

	if err := subscription.Validate(); err != nil {
		return nil, err
	}

	return &subscription, nil
}

// Validate enforces the subscription invariants. It runs on create and again
// after every patch merge.
func (s *Subscription) Validate() error {
	if s.TeamID == "" {
		return errors.Wrap(ErrInvalidInput, "team ID is required")
	}
	if len(s.TeamID) > SubscriptionTeamIDMaxLength {
		return errors.Wrapf(ErrInvalidInput, "team ID must not exceed %d characters", SubscriptionTeamIDMaxLength)
	}
	if len(s.OwnerID) > SubscriptionOwnerIDMaxLength {
		return errors.Wrapf(ErrInvalidInput, "owner ID must not exceed %d characters", SubscriptionOwnerIDMaxLength)
	}
	if s.Name == "" {
		return errors.Wrap(ErrInvalidInput, "name is required")
	}
	if len(s.Name) > SubscriptionNameMaxLength {
		return errors.Wrapf(ErrInvalidInput, "name must not exceed %d characters", SubscriptionNameMaxLength)
	}
	if err := validateSubscriptionURL(s.URL); err != nil {
		return err
	}
	if !s.EventType.IsValid() {
		return errors.Wrapf(ErrInvalidInput, "unknown event type %q", s.EventType)
	}
	if !s.Platform.IsValid() {
		return errors.Wrapf(ErrInvalidInput, "unknown platform %q", s.Platform)
	}
	if len(s.Secret) < SubscriptionSecretMinLength {
		return errors.Wrapf(ErrInvalidInput, "secret must be at least %d characters", SubscriptionSecretMinLength)
	}
	if len(s.Secret) > SubscriptionSecretMaxLength {
		return errors.Wrapf(ErrInvalidInput, "secret must not exceed %d characters", SubscriptionSecretMaxLength)
	}
	if err := s.Filters.Validate(); err != nil {
		return err
	}

	return nil
}

func validateSubscriptionURL(rawURL string) error {
	if rawURL == "" {
		return errors.Wrap(ErrInvalidInput, "target URL is required")
	}
	if len(rawURL) > SubscriptionURLMaxLength {
		return errors.Wrapf(ErrInvalidInput, "target URL must not exceed %d characters", SubscriptionURLMaxLength)
	}
	uri, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return errors.Wrap(ErrInvalidInput, "unable to parse target URL")
	}
	switch uri.Scheme {
	case "http", "https":
	default:
		return errors.Wrapf(ErrInvalidInput, "'%s' is not a valid scheme: should be 'http' or 'https'", uri.Scheme)
	}
	if uri.Host == "" {
		return errors.Wrap(ErrInvalidInput, "target URL must specify a host")
	}

	return nil
}

// NewCreateSubscriptionRequestFromReader will create a CreateSubscriptionRequest
// from an io.Reader with JSON data.
func NewCreateSubscriptionRequestFromReader(reader io.Reader) (*CreateSubscriptionRequest, error) {
	var createSubscriptionRequest CreateSubscriptionRequest
	err := json.NewDecoder(reader).Decode(&createSubscriptionRequest)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode create subscription request")
	}

	return &createSubscriptionRequest, nil
}

// UpdateSubscriptionRequest specifies a partial update. Only fields present
// in the request are applied.
type UpdateSubscriptionRequest struct {
	Name      *string
	URL       *string
	Platform  *Platform
	EventType *EventType
	Enabled   *bool
	Secret    *string
	Filters   *SubscriptionFilter
	Headers   StringMap
}

// Apply merges the patch into the subscription, returning true when anything
// changed. The merged record must be re-validated before storing.
func (request *UpdateSubscriptionRequest) Apply(subscription *Subscription) bool {
	var applied bool

	if request.Name != nil && *request.Name != subscription.Name {
		applied = true
		subscription.Name = *request.Name
	}
	if request.URL != nil && *request.URL != subscription.URL {
		applied = true
		subscription.URL = *request.URL
	}
	if request.Platform != nil && *request.Platform != subscription.Platform {
		applied = true
		subscription.Platform = *request.Platform
	}
	if request.EventType != nil && *request.EventType != subscription.EventType {
		applied = true
		subscription.EventType = *request.EventType
	}
	if request.Enabled != nil && *request.Enabled != subscription.Enabled {
		applied = true
		subscription.Enabled = *request.Enabled
	}
	if request.Secret != nil && *request.Secret != subscription.Secret {
		applied = true
		subscription.Secret = *request.Secret
	}
	if request.Filters != nil {
		applied = true
		subscription.Filters = request.Filters
	}
	if request.Headers != nil {
		applied = true
		subscription.Headers = request.Headers
	}

	return applied
}

// NewUpdateSubscriptionRequestFromReader will create an UpdateSubscriptionRequest
// from an io.Reader with JSON data.
func NewUpdateSubscriptionRequestFromReader(reader io.Reader) (*UpdateSubscriptionRequest, error) {
	var updateSubscriptionRequest UpdateSubscriptionRequest
	err := json.NewDecoder(reader).Decode(&updateSubscriptionRequest)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode update subscription request")
	}

	return &updateSubscriptionRequest, nil
}

// GetSubscriptionsRequest describes the parameters to request a list of
// subscriptions.
type GetSubscriptionsRequest struct {
	Paging
	Platform  Platform
	EventType EventType
	Enabled   *bool
	Search    string
	SortBy    string
	SortOrder string
}

// ApplyToURL modifies the given url to include query string parameters for the request.
func (request *GetSubscriptionsRequest) ApplyToURL(u *url.URL) {
	q := u.Query()
	if request.Platform != "" {
		q.Add("platform", string(request.Platform))
	}
	if request.EventType != "" {
		q.Add("event_type", string(request.EventType))
	}
	if request.Enabled != nil {
		q.Add("enabled", strconv.FormatBool(*request.Enabled))
	}
	if request.Search != "" {
		q.Add("search", request.Search)
	}
	if request.SortBy != "" {
		q.Add("sort", request.SortBy)
	}
	if request.SortOrder != "" {
		q.Add("order", request.SortOrder)
	}
	request.Paging.AddToQuery(q)
	u.RawQuery = q.Encode()
}
