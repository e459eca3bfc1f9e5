//go:build !cgo_sqlite

package sqlite

// Default build: pure Go SQLite with FTS5 compiled in.
//
//	CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	DriverName = "sqlite"
	BuildMode  = "purego"
)

// dsn enables foreign keys, WAL and a busy timeout on every pooled connection.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}
