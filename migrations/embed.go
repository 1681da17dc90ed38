// Package migrations embeds the goose SQL migrations of the sync ledger.
package migrations

import "embed"

// FS holds the migration files applied by the ledger on open.
//
//go:embed *.sql
var FS embed.FS
