//go:build !cgo_sqlite

package store

import (
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// DriverName is the database/sql driver used for the passage store.
const DriverName = "sqlite"
