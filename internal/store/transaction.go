// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Transaction is a wrapper around *sqlx.Tx providing convenience methods.
type Transaction struct {
	*sqlx.Tx
	sqlStore  *SQLStore
	committed bool
}

// Commit commits the pending transaction.
func (t *Transaction) Commit() error {
	if err := t.Tx.Commit(); err != nil {
		return err
	}

	t.committed = true

	return nil
}

// RollbackUnlessCommitted rollbacks the transaction if it is not committed.
func (t *Transaction) RollbackUnlessCommitted() {
	if t.committed {
		return
	}

	err := t.Tx.Rollback()
	if err == sql.ErrTxDone {
		return
	}
	if err != nil {
		t.sqlStore.logger.WithError(err).Error("Failed to rollback transaction")
	}
}

func (sqlStore *SQLStore) beginTransaction(db *sqlx.DB) (*Transaction, error) {
	tx, err := db.Beginx()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	return &Transaction{
		Tx:       tx,
		sqlStore: sqlStore,
	}, nil
}
