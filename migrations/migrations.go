// Package migrations embeds the goose SQL migrations for the admin schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
