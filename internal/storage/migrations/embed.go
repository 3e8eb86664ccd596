// Package migrations embeds the snippet database schema.
package migrations

import "embed"

// Files holds the migration scripts applied by storage.Open.
//
//go:embed *.sql
var Files embed.FS
