// Package migrations embeds the registry's SQL schema into the binary.
//
// Importing it for side effects registers the files with the database
// package:
//
//	import _ "github.com/nerrad567/gray-logic-registry/migrations"
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-registry/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
