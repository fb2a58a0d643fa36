// Package migrations embeds the goose SQL migration files so the migrate
// subcommand works from a single binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
