// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortpoint/webhook-dispatcher/internal/testlib"
	"github.com/shortpoint/webhook-dispatcher/model"
)

func TestGetTeamWebhookStats(t *testing.T) {
	logger := testlib.MakeLogger(t)
	sqlStore := MakeTestSQLStore(t, logger)
	defer CloseConnection(t, sqlStore)

	subscription1 := createTestSubscription(t, sqlStore, "team1", func(s *model.Subscription) {
		s.Platform = model.PlatformZapier
		s.EventType = model.EventTypeLinkCreated
	})
	createTestSubscription(t, sqlStore, "team1", func(s *model.Subscription) {
		s.Platform = model.PlatformZapier
		s.EventType = model.EventTypeLinkClicked
		s.Enabled = false
	})
	subscription3 := createTestSubscription(t, sqlStore, "team1", func(s *model.Subscription) {
		s.EventType = model.EventTypeLinkCreated
	})
	deleted := createTestSubscription(t, sqlStore, "team1", func(s *model.Subscription) {
		s.Platform = model.PlatformMake
		s.EventType = model.EventTypePageViewed
	})
	createTestSubscription(t, sqlStore, "team2", func(s *model.Subscription) {
		s.Platform = model.PlatformMake
	})

	// Only live subscriptions count, even if they saw deliveries before deletion.
	err := sqlStore.RecordDeliveryFailure(deleted.ID, "connection refused")
	require.NoError(t, err)
	err = sqlStore.DeleteSubscription(deleted.ID, "team1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		err = sqlStore.RecordDeliverySuccess(subscription1.ID)
		require.NoError(t, err)
	}
	err = sqlStore.RecordDeliveryFailure(subscription1.ID, "unexpected status code 500")
	require.NoError(t, err)
	err = sqlStore.RecordDeliveryFailure(subscription3.ID, "context deadline exceeded")
	require.NoError(t, err)

	t.Run("team with subscriptions", func(t *testing.T) {
		stats, err := sqlStore.GetTeamWebhookStats("team1")
		require.NoError(t, err)

		assert.Equal(t, "team1", stats.TeamID)
		assert.EqualValues(t, 3, stats.TotalSubscriptions)
		assert.EqualValues(t, 2, stats.EnabledCount)
		assert.EqualValues(t, 3, stats.TotalSuccesses)
		assert.EqualValues(t, 2, stats.TotalFailures)
		assert.Equal(t, map[model.Platform]int64{
			model.PlatformZapier: 2,
			model.PlatformCustom: 1,
		}, stats.ByPlatform)
		assert.Equal(t, map[model.EventType]int64{
			model.EventTypeLinkCreated: 2,
			model.EventTypeLinkClicked: 1,
		}, stats.ByEventType)
	})

	t.Run("team without subscriptions", func(t *testing.T) {
		stats, err := sqlStore.GetTeamWebhookStats("team3")
		require.NoError(t, err)

		assert.EqualValues(t, 0, stats.TotalSubscriptions)
		assert.EqualValues(t, 0, stats.EnabledCount)
		assert.EqualValues(t, 0, stats.TotalSuccesses)
		assert.EqualValues(t, 0, stats.TotalFailures)
		assert.Empty(t, stats.ByPlatform)
		assert.Empty(t, stats.ByEventType)
	})
}

func TestGetGlobalWebhookStats(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		logger := testlib.MakeLogger(t)
		sqlStore := MakeTestSQLStore(t, logger)
		defer CloseConnection(t, sqlStore)

		stats, err := sqlStore.GetGlobalWebhookStats()
		require.NoError(t, err)

		assert.EqualValues(t, 0, stats.TotalSubscriptions)
		assert.EqualValues(t, 0, stats.EnabledCount)
		assert.EqualValues(t, 0, stats.WithFailures)
		assert.EqualValues(t, 0, stats.TotalDeliveries)
		assert.Equal(t, 0.0, stats.SuccessRate)
		assert.Empty(t, stats.ByPlatform)
	})

	t.Run("across teams", func(t *testing.T) {
		logger := testlib.MakeLogger(t)
		sqlStore := MakeTestSQLStore(t, logger)
		defer CloseConnection(t, sqlStore)

		subscription1 := createTestSubscription(t, sqlStore, "team1", func(s *model.Subscription) {
			s.Platform = model.PlatformZapier
		})
		createTestSubscription(t, sqlStore, "team1", func(s *model.Subscription) {
			s.Platform = model.PlatformZapier
			s.Enabled = false
		})
		subscription3 := createTestSubscription(t, sqlStore, "team2", func(s *model.Subscription) {
			s.Platform = model.PlatformMake
		})
		createTestSubscription(t, sqlStore, "team2", nil)

		for i := 0; i < 3; i++ {
			err := sqlStore.RecordDeliverySuccess(subscription1.ID)
			require.NoError(t, err)
		}
		err := sqlStore.RecordDeliveryFailure(subscription1.ID, "unexpected status code 502")
		require.NoError(t, err)
		err = sqlStore.RecordDeliveryFailure(subscription3.ID, "connection refused")
		require.NoError(t, err)

		stats, err := sqlStore.GetGlobalWebhookStats()
		require.NoError(t, err)

		assert.EqualValues(t, 4, stats.TotalSubscriptions)
		assert.EqualValues(t, 3, stats.EnabledCount)
		assert.EqualValues(t, 2, stats.WithFailures)
		assert.EqualValues(t, 5, stats.TotalDeliveries)
		assert.InDelta(t, 60.0, stats.SuccessRate, 0.001)
		assert.Equal(t, map[model.Platform]int64{
			model.PlatformZapier: 2,
			model.PlatformMake:   1,
			model.PlatformCustom: 1,
		}, stats.ByPlatform)
	})
}
