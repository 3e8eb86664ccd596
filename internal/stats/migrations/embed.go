// Package migrations embeds the stats database schema.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
