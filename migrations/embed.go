// Package migrations embeds SQL migration files into the binary.
//
// This lets the daemon and its worker processes run against a freshly
// created database without shipping SQL files alongside the executable.
package migrations

import (
	"embed"

	"github.com/wattfleet/core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	// The embed directive above captures all .sql files in this directory.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
