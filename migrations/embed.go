// Package migrations embeds the SQL schema of the Postgres data source.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
