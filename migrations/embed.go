// Package migrations embeds the schema SQL applied by `bedtrack-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
