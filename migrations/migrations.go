package migrations

import "embed"

// FS holds the goose migrations so the cli can run them without a checkout.
//
//go:embed *.sql
var FS embed.FS
