//go:build cgo

package serverdb

import _ "github.com/mattn/go-sqlite3"

// CgoDriver is the cgo SQLite driver, available in cgo builds.
const CgoDriver = "sqlite3"
