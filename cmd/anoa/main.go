// Command anoa converts record files between formats, dropping and counting
// the records that fail instead of aborting.
package main

import (
	"os"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/lib/pq"              // registers the "postgres" database/sql driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" database/sql driver
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
