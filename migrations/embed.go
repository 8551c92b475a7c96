// Package migrations embeds the Postgres schema migrations so the server and
// the migrate CLI run the same files without a checkout on disk.
package migrations

import "embed"

// FS holds the *.up.sql / *.down.sql pairs
//
//go:embed *.sql
var FS embed.FS
