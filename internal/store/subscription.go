// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/shortpoint/webhook-dispatcher/model"
)

const subscriptionTable = "Subscription"

var (
	subscriptionColumns = []string{
		"ID",
		"TeamID",
		"OwnerID",
		"Platform",
		"Name",
		"URL",
		"EventType",
		"Enabled",
		"Secret",
		"Filters",
		"Headers",
		"SuccessCount",
		"FailureCount",
		"LastTriggeredAt",
		"LastError",
		"CreateAt",
		"UpdateAt",
		"DeleteAt",
	}

	subscriptionSelect = sq.Select(subscriptionColumns...).
				From(subscriptionTable)
)

// subscriptionSortColumns maps the client-facing sort keys onto columns. Anything else falls
// back to newest-first.
var subscriptionSortColumns = map[string]string{
	"created_at":        "CreateAt",
	"updated_at":        "UpdateAt",
	"name":              "Name",
	"platform":          "Platform",
	"enabled":           "Enabled",
	"success_count":     "SuccessCount",
	"failure_count":     "FailureCount",
	"last_triggered_at": "LastTriggeredAt",
}

func sortClause(sortBy, sortOrder string) string {
	column, ok := subscriptionSortColumns[strings.ToLower(sortBy)]
	if !ok {
		return "CreateAt DESC"
	}

	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}

	return fmt.Sprintf("%s %s", column, direction)
}

// CreateSubscription validates the given subscription and records it to the database, assigning
// it a unique ID.
func (sqlStore *SQLStore) CreateSubscription(subscription *model.Subscription) error {
	if err := subscription.Validate(); err != nil {
		return err
	}

	subscription.ID = model.NewID()
	subscription.CreateAt = model.GetMillis()
	subscription.UpdateAt = subscription.CreateAt
	subscription.DeleteAt = 0

	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Insert(subscriptionTable).
		SetMap(map[string]interface{}{
			"ID":              subscription.ID,
			"TeamID":          subscription.TeamID,
			"OwnerID":         subscription.OwnerID,
			"Platform":        subscription.Platform,
			"Name":            subscription.Name,
			"URL":             subscription.URL,
			"EventType":       subscription.EventType,
			"Enabled":         subscription.Enabled,
			"Secret":          subscription.Secret,
			"Filters":         subscription.Filters,
			"Headers":         subscription.Headers,
			"SuccessCount":    subscription.SuccessCount,
			"FailureCount":    subscription.FailureCount,
			"LastTriggeredAt": subscription.LastTriggeredAt,
			"LastError":       subscription.LastError,
			"CreateAt":        subscription.CreateAt,
			"UpdateAt":        subscription.UpdateAt,
			"DeleteAt":        subscription.DeleteAt,
		}),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create subscription")
	}

	return nil
}

// GetSubscription fetches the subscription with the given ID as seen by the given team,
// returning nil when no such subscription exists.
func (sqlStore *SQLStore) GetSubscription(id, teamID string) (*model.Subscription, error) {
	var subscription model.Subscription
	err := sqlStore.getBuilder(sqlStore.db, &subscription, subscriptionSelect.
		Where("ID = ?", id).
		Where("TeamID = ?", teamID),
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get subscription by id")
	}

	return &subscription, nil
}

// GetSubscriptions fetches the given team's subscriptions, constrained and sorted by the filter.
func (sqlStore *SQLStore) GetSubscriptions(filter *model.SubscriptionsFilter) ([]*model.Subscription, error) {
	if filter.TeamID == "" {
		return nil, errors.Wrap(model.ErrInvalidInput, "team ID is required")
	}

	query := subscriptionSelect.
		Where("TeamID = ?", filter.TeamID).
		OrderBy(sortClause(filter.SortBy, filter.SortOrder), "ID ASC")

	if filter.Platform != "" {
		query = query.Where("Platform = ?", filter.Platform)
	}
	if filter.EventType != "" {
		query = query.Where("EventType = ?", filter.EventType)
	}
	if filter.Enabled != nil {
		query = query.Where("Enabled = ?", *filter.Enabled)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(sq.Or{
			sq.Expr("LOWER(Name) LIKE ?", search),
			sq.Expr("LOWER(URL) LIKE ?", search),
		})
	}

	paging := filter.Paging
	if paging.PerPage > model.MaxPerPage {
		paging.PerPage = model.MaxPerPage
	}
	query = applyPagingFilter(query, paging)

	subscriptions := []*model.Subscription{}
	err := sqlStore.selectBuilder(sqlStore.db, &subscriptions, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get subscriptions")
	}

	return subscriptions, nil
}

// GetMatchingSubscriptions fetches the enabled subscriptions registered by the given team for
// the given event type. This is the dispatch-path lookup and ignores deleted records.
func (sqlStore *SQLStore) GetMatchingSubscriptions(teamID string, eventType model.EventType) ([]*model.Subscription, error) {
	subscriptions := []*model.Subscription{}
	err := sqlStore.selectBuilder(sqlStore.db, &subscriptions, subscriptionSelect.
		Where("TeamID = ?", teamID).
		Where("EventType = ?", eventType).
		Where("Enabled = ?", true).
		Where("DeleteAt = 0").
		OrderBy("CreateAt ASC", "ID ASC"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get matching subscriptions")
	}

	return subscriptions, nil
}

// UpdateSubscription applies the given patch to the team's subscription and returns the updated
// record. The merged record is validated before anything is written.
func (sqlStore *SQLStore) UpdateSubscription(id, teamID string, patch *model.UpdateSubscriptionRequest) (*model.Subscription, error) {
	tx, err := sqlStore.beginTransaction(sqlStore.db)
	if err != nil {
		return nil, err
	}
	defer tx.RollbackUnlessCommitted()

	var subscription model.Subscription
	err = sqlStore.getBuilder(tx, &subscription, subscriptionSelect.
		Where("ID = ?", id).
		Where("TeamID = ?", teamID).
		Where("DeleteAt = 0"),
	)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(model.ErrNotFound, "subscription not found")
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get subscription for update")
	}

	if !patch.Apply(&subscription) {
		return &subscription, nil
	}

	if err = subscription.Validate(); err != nil {
		return nil, err
	}

	subscription.UpdateAt = model.GetMillis()

	_, err = sqlStore.execBuilder(tx, sq.
		Update(subscriptionTable).
		SetMap(map[string]interface{}{
			"Platform":  subscription.Platform,
			"Name":      subscription.Name,
			"URL":       subscription.URL,
			"EventType": subscription.EventType,
			"Enabled":   subscription.Enabled,
			"Secret":    subscription.Secret,
			"Filters":   subscription.Filters,
			"Headers":   subscription.Headers,
			"UpdateAt":  subscription.UpdateAt,
		}).
		Where("ID = ?", id),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update subscription")
	}

	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}

	return &subscription, nil
}

// DeleteSubscription marks the team's subscription as deleted. Deleting an already-deleted
// subscription succeeds without effect, but a subscription the team has never seen is reported
// as missing.
func (sqlStore *SQLStore) DeleteSubscription(id, teamID string) error {
	result, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(subscriptionTable).
		Set("DeleteAt", model.GetMillis()).
		Where("ID = ?", id).
		Where("TeamID = ?", teamID).
		Where("DeleteAt = 0"),
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark subscription as deleted")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rows == 0 {
		subscription, err := sqlStore.GetSubscription(id, teamID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return errors.Wrap(model.ErrNotFound, "subscription not found")
		}
	}

	return nil
}

// ToggleSubscription flips the enabled flag on the team's subscription, returning the updated
// record.
func (sqlStore *SQLStore) ToggleSubscription(id, teamID string) (*model.Subscription, error) {
	err := sqlStore.updateLiveSubscription(id, teamID, map[string]interface{}{
		"Enabled": sq.Expr("NOT Enabled"),
	})
	if err != nil {
		return nil, err
	}

	return sqlStore.GetSubscription(id, teamID)
}

// SetSubscriptionEnabled forces the enabled flag on the team's subscription to the given value,
// returning the updated record.
func (sqlStore *SQLStore) SetSubscriptionEnabled(id, teamID string, enabled bool) (*model.Subscription, error) {
	err := sqlStore.updateLiveSubscription(id, teamID, map[string]interface{}{
		"Enabled": enabled,
	})
	if err != nil {
		return nil, err
	}

	return sqlStore.GetSubscription(id, teamID)
}

// RegenerateSubscriptionSecret replaces the subscription's signing secret with a freshly
// generated one, returning the updated record including the new secret.
func (sqlStore *SQLStore) RegenerateSubscriptionSecret(id, teamID string) (*model.Subscription, error) {
	secret, err := model.NewWebhookSecret()
	if err != nil {
		return nil, err
	}

	err = sqlStore.updateLiveSubscription(id, teamID, map[string]interface{}{
		"Secret": secret,
	})
	if err != nil {
		return nil, err
	}

	return sqlStore.GetSubscription(id, teamID)
}

// updateLiveSubscription applies the given column values to the subscription if it exists for
// the team and is not deleted, bumping UpdateAt alongside.
func (sqlStore *SQLStore) updateLiveSubscription(id, teamID string, values map[string]interface{}) error {
	values["UpdateAt"] = model.GetMillis()

	result, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(subscriptionTable).
		SetMap(values).
		Where("ID = ?", id).
		Where("TeamID = ?", teamID).
		Where("DeleteAt = 0"),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update subscription")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rows == 0 {
		return errors.Wrap(model.ErrNotFound, "subscription not found")
	}

	return nil
}

// RecordDeliverySuccess increments the subscription's success counter, stamps the delivery time
// and clears any previous delivery error.
func (sqlStore *SQLStore) RecordDeliverySuccess(id string) error {
	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(subscriptionTable).
		Set("SuccessCount", sq.Expr("SuccessCount + 1")).
		Set("LastTriggeredAt", model.GetMillis()).
		Set("LastError", nil).
		Where("ID = ?", id),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record delivery success")
	}

	return nil
}

// RecordDeliveryFailure increments the subscription's failure counter, stamps the delivery time
// and records the error for operator visibility, truncating oversized messages.
func (sqlStore *SQLStore) RecordDeliveryFailure(id, deliveryError string) error {
	if len(deliveryError) > model.SubscriptionLastErrorMaxLength {
		deliveryError = strings.ToValidUTF8(deliveryError[:model.SubscriptionLastErrorMaxLength], "")
	}

	_, err := sqlStore.execBuilder(sqlStore.db, sq.
		Update(subscriptionTable).
		Set("FailureCount", sq.Expr("FailureCount + 1")).
		Set("LastTriggeredAt", model.GetMillis()).
		Set("LastError", deliveryError).
		Where("ID = ?", id),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record delivery failure")
	}

	return nil
}
