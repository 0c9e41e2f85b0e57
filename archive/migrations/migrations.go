// Package migrations embeds the finding archive's schema migrations.
package migrations

import (
	"database/sql"
	"embed"

	"github.com/remind101/migrate"
)

//go:embed *.sql
var sys embed.FS

func runFile(n string) func(*sql.Tx) error {
	b, err := sys.ReadFile(n)
	return func(tx *sql.Tx) error {
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(b)); err != nil {
			return err
		}
		return nil
	}
}

// MigrationTable is the table remind101/migrate uses to track which
// migrations have already run.
const MigrationTable = "httpfuzzer_migrations"

// Migrations is applied, in order, by archive.Open.
var Migrations = []migrate.Migration{
	{ID: 1, Up: runFile("01-httpfuzzer_issues.sql")},
	{ID: 2, Up: runFile("02-headlessscanner_issues.sql")},
}
