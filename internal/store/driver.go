// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

const (
	driverPostgres = "postgres"
	driverSqlite   = "sqlite3"
)
