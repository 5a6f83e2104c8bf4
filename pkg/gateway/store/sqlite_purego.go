//go:build !cgo

package store

// CGO_ENABLED=0 build: the pure-Go modernc.org/sqlite driver, so the
// gateway is deployable without a C toolchain. Same Store, same schema,
// selected entirely by build tag.
import _ "modernc.org/sqlite"

const driverName = "sqlite"
