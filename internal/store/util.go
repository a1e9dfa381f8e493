// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/shortpoint/webhook-dispatcher/model"
)

func applyPagingFilter(builder sq.SelectBuilder, paging model.Paging) sq.SelectBuilder {
	if paging.PerPage != model.AllPerPage {
		builder = builder.
			Limit(uint64(paging.PerPage)).
			Offset(uint64(paging.Page * paging.PerPage))
	}
	if !paging.IncludeDeleted {
		builder = builder.Where("DeleteAt = 0")
	}

	return builder
}

// getCount runs the given builder, expected to select a single count, and returns the result.
func (sqlStore *SQLStore) getCount(builder sq.SelectBuilder) (int64, error) {
	var count int64
	err := sqlStore.getBuilder(sqlStore.db, &count, builder)
	if err != nil {
		return 0, errors.Wrap(err, "failed to query count")
	}

	return count, nil
}
