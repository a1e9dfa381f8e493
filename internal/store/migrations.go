// Copyright (c) 2015-present Shortpoint, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package store

import (
	"github.com/blang/semver"
)

type migration struct {
	fromVersion   semver.Version
	toVersion     semver.Version
	migrationFunc func(execer) error
}

// migrations defines the set of migrations necessary to advance the database to the latest
// expected version.
//
// Note that the canonical schema is currently obtained by applying all migrations to an empty
// database.
var migrations = []migration{
	{semver.MustParse("0.0.0"), semver.MustParse("0.1.0"), func(e execer) error {
		_, err := e.Exec(`
			CREATE TABLE System (
				Key VARCHAR(64) PRIMARY KEY,
				Value VARCHAR(1024) NULL
			);
		`)
		if err != nil {
			return err
		}

		_, err = e.Exec(`
			CREATE TABLE Subscription (
				ID CHAR(26) PRIMARY KEY,
				TeamID VARCHAR(64) NOT NULL,
				OwnerID VARCHAR(64) NOT NULL,
				Platform VARCHAR(32) NOT NULL,
				Name VARCHAR(128) NOT NULL,
				URL VARCHAR(2048) NOT NULL,
				EventType VARCHAR(64) NOT NULL,
				Enabled BOOLEAN NOT NULL,
				Secret VARCHAR(256) NOT NULL,
				Filters TEXT NULL,
				Headers TEXT NULL,
				SuccessCount BIGINT NOT NULL,
				FailureCount BIGINT NOT NULL,
				LastTriggeredAt BIGINT NOT NULL,
				LastError VARCHAR(500) NULL,
				CreateAt BIGINT NOT NULL,
				UpdateAt BIGINT NOT NULL,
				DeleteAt BIGINT NOT NULL
			);
		`)
		if err != nil {
			return err
		}

		return nil
	}},
	{semver.MustParse("0.1.0"), semver.MustParse("0.2.0"), func(e execer) error {
		// Covers the dispatch-path lookup of enabled subscriptions by team and event type.
		_, err := e.Exec(`
			CREATE INDEX Subscription_TeamID_EventType_Enabled ON Subscription (TeamID, EventType, Enabled);
		`)
		if err != nil {
			return err
		}

		return nil
	}},
}
