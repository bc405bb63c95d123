// Package migrations embeds the goose SQL migrations for the relational
// conversation store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
