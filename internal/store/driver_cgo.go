//go:build cgo_sqlite

package store

import (
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver
)

// DriverName is the database/sql driver used for the passage store.
const DriverName = "sqlite3"
