// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shortpoint/webhook-dispatcher/model"
)

// initStats registers webhook catalog and statistics endpoints on the given router.
func initStats(apiRouter *mux.Router, context *Context) {
	addContext := func(handler contextHandlerFunc) *contextHandler {
		return newContextHandler(context, handler)
	}

	webhooksRouter := apiRouter.PathPrefix("/webhooks").Subrouter()
	webhooksRouter.Handle("/events", addContext(handleGetEventTypes)).Methods("GET")
	webhooksRouter.Handle("/platforms", addContext(handleGetPlatforms)).Methods("GET")
	webhooksRouter.Handle("/stats", addContext(handleGetTeamStats)).Methods("GET")
	webhooksRouter.Handle("/stats/global", addContext(handleGetGlobalStats)).Methods("GET")
}

// handleGetEventTypes responds to GET /api/webhooks/events, returning the catalog of
// subscribable event types.
func handleGetEventTypes(c *Context, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, model.EventTypes)
}

// handleGetPlatforms responds to GET /api/webhooks/platforms, returning the supported
// automation platforms.
func handleGetPlatforms(c *Context, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, model.Platforms)
}

// handleGetTeamStats responds to GET /api/webhooks/stats, returning aggregate subscription and
// delivery counts for the acting team.
func handleGetTeamStats(c *Context, w http.ResponseWriter, r *http.Request) {
	teamID, ok := teamIDForRequest(c, w, r)
	if !ok {
		return
	}

	stats, err := c.Store.GetTeamWebhookStats(teamID)
	if err != nil {
		c.Logger.WithError(err).Error("failed to query team webhook stats")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, stats)
}

// handleGetGlobalStats responds to GET /api/webhooks/stats/global, returning dispatcher-wide
// aggregates for operators.
func handleGetGlobalStats(c *Context, w http.ResponseWriter, r *http.Request) {
	stats, err := c.Store.GetGlobalWebhookStats()
	if err != nil {
		c.Logger.WithError(err).Error("failed to query global webhook stats")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	outputJSON(c, w, stats)
}
