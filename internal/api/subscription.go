// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shortpoint/webhook-dispatcher/model"
)

// initSubscriptions registers subscription endpoints on the given router.
func initSubscriptions(apiRouter *mux.Router, context *Context) {
	addContext := func(handler contextHandlerFunc) *contextHandler {
		return newContextHandler(context, handler)
	}

	subscriptionsRouter := apiRouter.PathPrefix("/webhooks/subscriptions").Subrouter()
	subscriptionsRouter.Handle("", addContext(handleGetSubscriptions)).Methods("GET")
	subscriptionsRouter.Handle("", addContext(handleCreateSubscription)).Methods("POST")

	subscriptionRouter := apiRouter.PathPrefix("/webhooks/subscription/{subscription:[A-Za-z0-9]{26}}").Subrouter()
	subscriptionRouter.Handle("", addContext(handleGetSubscription)).Methods("GET")
	subscriptionRouter.Handle("", addContext(handleUpdateSubscription)).Methods("PUT")
	subscriptionRouter.Handle("", addContext(handleDeleteSubscription)).Methods("DELETE")
	subscriptionRouter.Handle("/toggle", addContext(handleToggleSubscription)).Methods("POST")
	subscriptionRouter.Handle("/enable", addContext(handleEnableSubscription)).Methods("PUT")
	subscriptionRouter.Handle("/disable", addContext(handleDisableSubscription)).Methods("PUT")
	subscriptionRouter.Handle("/secret", addContext(handleRegenerateSubscriptionSecret)).Methods("POST")
	subscriptionRouter.Handle("/test", addContext(handleTestSubscription)).Methods("POST")
}

// handleCreateSubscription responds to POST /api/webhooks/subscriptions, registering a new
// subscription for the acting team. The response is the only time the signing secret is shown.
func handleCreateSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	createSubscriptionRequest, err := model.NewCreateSubscriptionRequestFromReader(r.Body)
	if err != nil {
		c.Logger.WithError(err).Error("failed to decode request")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	createSubscriptionRequest.TeamID = teamID

	subscription, err := createSubscriptionRequest.ToSubscription()
	if err != nil {
		c.Logger.WithError(err).Error("invalid create subscription request")
		w.WriteHeader(errToStatus(err))
		return
	}

	err = c.Store.CreateSubscription(subscription)
	if err != nil {
		c.Logger.WithError(err).Error("failed to create subscription")
		w.WriteHeader(errToStatus(err))
		return
	}

	c.Logger.WithField("subscription", subscription.ID).Info("Registered subscription")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	outputJSON(c, w, subscription)
}

// handleGetSubscription responds to GET /api/webhooks/subscription/{subscription}, returning the
// subscription in question. A subscription under another team is indistinguishable from a
// missing one.
func handleGetSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	subscriptionID := mux.Vars(r)["subscription"]
	c.Logger = c.Logger.WithField("subscription", subscriptionID)

	subscription, err := c.Store.GetSubscription(subscriptionID, teamID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query subscription")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if subscription == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	subscription.Sanitize()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, subscription)
}

// handleGetSubscriptions responds to GET /api/webhooks/subscriptions, returning the specified
// page of the acting team's subscriptions.
func handleGetSubscriptions(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	paging, err := parsePaging(r.URL)
	if err != nil {
		c.Logger.WithError(err).Error("failed to parse paging parameters")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	enabled, err := parseBoolPointer(r.URL, "enabled")
	if err != nil {
		c.Logger.WithError(err).Error("failed to parse enabled parameter")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	filter := &model.SubscriptionsFilter{
		Paging:    paging,
		TeamID:    teamID,
		Platform:  model.Platform(r.URL.Query().Get("platform")),
		EventType: model.EventType(r.URL.Query().Get("event_type")),
		Enabled:   enabled,
		Search:    r.URL.Query().Get("search"),
		SortBy:    r.URL.Query().Get("sort"),
		SortOrder: r.URL.Query().Get("order"),
	}

	subscriptions, err := c.Store.GetSubscriptions(filter)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query subscriptions")
		w.WriteHeader(errToStatus(err))
		return
	}
	if subscriptions == nil {
		subscriptions = []*model.Subscription{}
	}

	for _, subscription := range subscriptions {
		subscription.Sanitize()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, subscriptions)
}

// handleUpdateSubscription responds to PUT /api/webhooks/subscription/{subscription}, applying
// the patch fields present in the request.
func handleUpdateSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	subscriptionID := mux.Vars(r)["subscription"]
	c.Logger = c.Logger.WithField("subscription", subscriptionID)

	updateSubscriptionRequest, err := model.NewUpdateSubscriptionRequestFromReader(r.Body)
	if err != nil {
		c.Logger.WithError(err).Error("failed to decode request")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	subscription, err := c.Store.UpdateSubscription(subscriptionID, teamID, updateSubscriptionRequest)
	if err != nil {
		c.Logger.WithError(err).Error("failed to update subscription")
		w.WriteHeader(errToStatus(err))
		return
	}

	subscription.Sanitize()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, subscription)
}

// handleDeleteSubscription responds to DELETE /api/webhooks/subscription/{subscription}, marking
// the subscription as deleted. Deleting twice succeeds; deleting a subscription the team has
// never seen does not.
func handleDeleteSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	subscriptionID := mux.Vars(r)["subscription"]
	c.Logger = c.Logger.WithField("subscription", subscriptionID)

	err := c.Store.DeleteSubscription(subscriptionID, teamID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to mark subscription as deleted")
		w.WriteHeader(errToStatus(err))
		return
	}

	c.Logger.Info("Deleted subscription")

	w.WriteHeader(http.StatusOK)
}

// handleToggleSubscription responds to POST /api/webhooks/subscription/{subscription}/toggle,
// flipping the enabled state.
func handleToggleSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	subscriptionID := mux.Vars(r)["subscription"]
	c.Logger = c.Logger.WithField("subscription", subscriptionID)

	subscription, err := c.Store.ToggleSubscription(subscriptionID, teamID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to toggle subscription")
		w.WriteHeader(errToStatus(err))
		return
	}

	subscription.Sanitize()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, subscription)
}

// handleEnableSubscription responds to PUT /api/webhooks/subscription/{subscription}/enable.
func handleEnableSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	setSubscriptionEnabled(c, w, r, true)
}

// handleDisableSubscription responds to PUT /api/webhooks/subscription/{subscription}/disable.
func handleDisableSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	setSubscriptionEnabled(c, w, r, false)
}

func setSubscriptionEnabled(c *Context, w http.ResponseWriter, r *http.Request, enabled bool) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	subscriptionID := mux.Vars(r)["subscription"]
	c.Logger = c.Logger.WithField("subscription", subscriptionID)

	subscription, err := c.Store.SetSubscriptionEnabled(subscriptionID, teamID, enabled)
	if err != nil {
		c.Logger.WithError(err).Error("failed to set subscription enabled state")
		w.WriteHeader(errToStatus(err))
		return
	}

	subscription.Sanitize()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, subscription)
}

// handleRegenerateSubscriptionSecret responds to POST
// /api/webhooks/subscription/{subscription}/secret, atomically replacing the signing secret. The
// response is the only time the new secret is shown.
func handleRegenerateSubscriptionSecret(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	subscriptionID := mux.Vars(r)["subscription"]
	c.Logger = c.Logger.WithField("subscription", subscriptionID)

	subscription, err := c.Store.RegenerateSubscriptionSecret(subscriptionID, teamID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to regenerate subscription secret")
		w.WriteHeader(errToStatus(err))
		return
	}

	c.Logger.Info("Regenerated subscription secret")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, subscription)
}

// handleTestSubscription responds to POST /api/webhooks/subscription/{subscription}/test,
// performing a synchronous test delivery and reporting the outcome without touching the
// subscription counters.
func handleTestSubscription(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	subscriptionID := mux.Vars(r)["subscription"]
	c.Logger = c.Logger.WithField("subscription", subscriptionID)

	subscription, err := c.Store.GetSubscription(subscriptionID, teamID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query subscription")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if subscription == nil || subscription.IsDeleted() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	result := c.Deliverer.SendTest(r.Context(), subscription)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, result)
}
