// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"math"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/shortpoint/webhook-dispatcher/model"
)

type subscriptionTotals struct {
	Total     int64
	Enabled   int64
	Successes int64
	Failures  int64
}

// getSubscriptionTotals aggregates counts over live subscriptions, optionally scoped to a team.
func (sqlStore *SQLStore) getSubscriptionTotals(teamID string) (*subscriptionTotals, error) {
	query := sq.
		Select(
			"COUNT(*) AS Total",
			"COALESCE(SUM(CASE WHEN Enabled THEN 1 ELSE 0 END), 0) AS Enabled",
			"COALESCE(SUM(SuccessCount), 0) AS Successes",
			"COALESCE(SUM(FailureCount), 0) AS Failures",
		).
		From(subscriptionTable).
		Where("DeleteAt = 0")
	if teamID != "" {
		query = query.Where("TeamID = ?", teamID)
	}

	var totals subscriptionTotals
	err := sqlStore.getBuilder(sqlStore.db, &totals, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get subscription totals")
	}

	return &totals, nil
}

func (sqlStore *SQLStore) getSubscriptionCountsByPlatform(teamID string) (map[model.Platform]int64, error) {
	query := sq.
		Select("Platform", "COUNT(*) AS Count").
		From(subscriptionTable).
		Where("DeleteAt = 0").
		GroupBy("Platform")
	if teamID != "" {
		query = query.Where("TeamID = ?", teamID)
	}

	var rows []struct {
		Platform model.Platform
		Count    int64
	}
	err := sqlStore.selectBuilder(sqlStore.db, &rows, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get subscription counts by platform")
	}

	counts := make(map[model.Platform]int64)
	for _, row := range rows {
		counts[row.Platform] = row.Count
	}

	return counts, nil
}

func (sqlStore *SQLStore) getSubscriptionCountsByEventType(teamID string) (map[model.EventType]int64, error) {
	query := sq.
		Select("EventType", "COUNT(*) AS Count").
		From(subscriptionTable).
		Where("DeleteAt = 0").
		GroupBy("EventType")
	if teamID != "" {
		query = query.Where("TeamID = ?", teamID)
	}

	var rows []struct {
		EventType model.EventType
		Count     int64
	}
	err := sqlStore.selectBuilder(sqlStore.db, &rows, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get subscription counts by event type")
	}

	counts := make(map[model.EventType]int64)
	for _, row := range rows {
		counts[row.EventType] = row.Count
	}

	return counts, nil
}

// GetTeamWebhookStats summarizes the live webhook subscriptions registered by the given team.
func (sqlStore *SQLStore) GetTeamWebhookStats(teamID string) (*model.TeamWebhookStats, error) {
	totals, err := sqlStore.getSubscriptionTotals(teamID)
	if err != nil {
		return nil, err
	}

	byPlatform, err := sqlStore.getSubscriptionCountsByPlatform(teamID)
	if err != nil {
		return nil, err
	}

	byEventType, err := sqlStore.getSubscriptionCountsByEventType(teamID)
	if err != nil {
		return nil, err
	}

	return &model.TeamWebhookStats{
		TeamID:             teamID,
		TotalSubscriptions: totals.Total,
		EnabledCount:       totals.Enabled,
		ByPlatform:         byPlatform,
		ByEventType:        byEventType,
		TotalSuccesses:     totals.Successes,
		TotalFailures:      totals.Failures,
	}, nil
}

// GetGlobalWebhookStats summarizes live webhook subscriptions across all teams.
func (sqlStore *SQLStore) GetGlobalWebhookStats() (*model.GlobalWebhookStats, error) {
	totals, err := sqlStore.getSubscriptionTotals("")
	if err != nil {
		return nil, err
	}

	withFailures, err := sqlStore.getCount(sq.
		Select("COUNT(*)").
		From(subscriptionTable).
		Where("FailureCount > 0").
		Where("DeleteAt = 0"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count subscriptions with failures")
	}

	byPlatform, err := sqlStore.getSubscriptionCountsByPlatform("")
	if err != nil {
		return nil, err
	}

	stats := &model.GlobalWebhookStats{
		TotalSubscriptions: totals.Total,
		EnabledCount:       totals.Enabled,
		WithFailures:       withFailures,
		TotalDeliveries:    totals.Successes + totals.Failures,
		ByPlatform:         byPlatform,
	}
	if stats.TotalDeliveries > 0 {
		rate := float64(totals.Successes) / float64(stats.TotalDeliveries) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}

	return stats, nil
}
