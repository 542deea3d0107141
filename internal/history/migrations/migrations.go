// Package migrations embeds the SQLite schema applied by the history store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
