// Package migrate applies the goose SQL migrations under migrations/. The
// files are embedded so every binary carries the schema it was built against.
package migrate

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed migrations/*.sql
var embedded embed.FS

// SourceDir is where new migrations are scaffolded, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

// Source returns the migration files to run: the embedded set when dir is
// empty, otherwise the files on disk under dir.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	return os.DirFS(dir), nil
}
