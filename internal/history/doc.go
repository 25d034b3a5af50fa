// Package history persists the outcome of command runs in a SQLite database.
//
// Schema changes ship as embedded goose migrations applied by Migrate.
package history
