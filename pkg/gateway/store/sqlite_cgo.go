//go:build cgo

package store

// Default build: the cgo-backed mattn/go-sqlite3 driver, the teacher's
// SQLite dependency of choice throughout pkg/evidence/storage.
import _ "github.com/mattn/go-sqlite3"

const driverName = "sqlite3"
