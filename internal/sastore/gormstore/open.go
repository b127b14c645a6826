// SPDX-License-Identifier: Apache-2.0

package gormstore

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open opens a *gorm.DB for the named dialect against dsn, the same
// db-type/DSN pair the teacher's mission config uses to pick a storage
// backend. The returned DB is not yet wrapped by New; callers that want
// a sastore.Store still call New(db) themselves.
func Open(dbType, dsn string) (*gorm.DB, error) {
	switch dbType {
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("gormstore: unsupported db type %q", dbType)
	}
}
