// Package migrations embeds the SQL migration files for the tree manager
// schema so they ship inside the compiled binary, following the teacher's
// bun/migrate discovery pattern (see internal/infrastructure/storage/migrate.go).
package migrations

import "embed"

// FS holds the embedded *.up.sql / *.down.sql migration files.
//
//go:embed *.sql
var FS embed.FS
