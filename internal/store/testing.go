// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func makeUnmigratedTestSQLStore(tb testing.TB, logger log.FieldLogger) *SQLStore {
	dsn := os.Getenv("DISPATCHER_DATABASE")
	if dsn == "" {
		dsn = "sqlite://:memory:/"
	}

	sqlStore, err := New(dsn, logger)
	require.NoError(tb, err)

	// The in-memory sqlite database lives and dies with its connection, and the postgres
	// temporary-table schema selected below is session scoped, so restrict the pool to a
	// single connection for a consistent view across goroutines.
	sqlStore.db.SetMaxOpenConns(1)

	if sqlStore.db.DriverName() == driverPostgres {
		_, err = sqlStore.db.Exec("SET search_path TO pg_temp")
		require.NoError(tb, err)
	}

	return sqlStore
}

// MakeTestSQLStore creates a SQLStore for use with unit tests.
func MakeTestSQLStore(tb testing.TB, logger log.FieldLogger) *SQLStore {
	sqlStore := makeUnmigratedTestSQLStore(tb, logger)
	err := sqlStore.Migrate()
	require.NoError(tb, err)

	return sqlStore
}

// CloseConnection closes the underlying database connection.
func CloseConnection(tb testing.TB, sqlStore *SQLStore) {
	err := sqlStore.db.Close()
	require.NoError(tb, err)
}
