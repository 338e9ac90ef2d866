// Package migrations embeds the security core schema so the binary can
// bootstrap its own tables regardless of working directory.
package migrations

import "embed"

// FS contains all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
