package api

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/shortpoint/webhook-dispatcher/model"
)

// Store describes the interface required to persist changes made via API requests.
type Store interface {
	CreateSubscription(subscription *model.Subscription) error
	GetSubscription(id, teamID string) (*model.Subscription, error)
	GetSubscriptions(filter *model.SubscriptionsFilter) ([]*model.Subscription, error)
	UpdateSubscription(id, teamID string, patch *model.UpdateSubscriptionRequest) (*model.Subscription, error)
	DeleteSubscription(id, teamID string) error
	ToggleSubscription(id, teamID string) (*model.Subscription, error)
	SetSubscriptionEnabled(id, teamID string, enabled bool) (*model.Subscription, error)
	RegenerateSubscriptionSecret(id, teamID string) (*model.Subscription, error)

	GetTeamWebhookStats(teamID string) (*model.TeamWebhookStats, error)
	GetGlobalWebhookStats() (*model.GlobalWebhookStats, error)
}

// Deliverer describes the interface required to perform manual test deliveries.
type Deliverer interface {
	SendTest(ctx context.Context, subscription *model.Subscription) *model.TestDeliveryResult
}

// Metrics describes the interface used to instrument API requests.
type Metrics interface {
	IncrementAPIRequest()
	ObserveAPIEndpointDuration(endpoint, method string, statusCode int, elapsed float64)
}

// Context provides the API with all necessary data and interfaces for responding to requests.
//
// It is cloned before each request, allowing per-request changes such as logger annotations.
type Context struct {
	Store     Store
	Deliverer Deliverer
	Metrics   Metrics
	RequestID string
	Logger    logrus.FieldLogger
}

// Clone creates a shallow copy of context, allowing clones to apply per-request changes.
func (c *Context) Clone() *Context {
	return &Context{
		Store:     c.Store,
		Deliverer: c.Deliverer,
		Metrics:   c.Metrics,
		Logger:    c.Logger,
	}
}
