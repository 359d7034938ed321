// Package migrations embeds the versioned SQL schema for the rental service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
