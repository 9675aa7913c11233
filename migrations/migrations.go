// Package migrations embeds the SQL migrations of the dev indexer database.
package migrations

import "embed"

// FS holds goose migrations.
//
//go:embed *.sql
var FS embed.FS
