package history

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverNameConstant             = "sqlite"
	gooseDialectConstant                 = "sqlite3"
	migrationsDirectoryConstant          = "migrations"
	inMemoryDatabasePathConstant         = ":memory:"
	foreignKeysPragmaConstant            = "PRAGMA foreign_keys = ON"
	databaseDirectoryPermissionsConstant = 0o750
	openDatabaseErrorTemplateConstant    = "opening history database %s: %w"
	pingDatabaseErrorTemplateConstant    = "connecting to history database %s: %w"
	pragmaErrorTemplateConstant          = "configuring history database: %w"
	directoryErrorTemplateConstant       = "creating history directory %s: %w"
	dialectErrorTemplateConstant         = "setting migration dialect: %w"
	migrationErrorTemplateConstant       = "running history migrations: %w"
	versionErrorTemplateConstant         = "reading history schema version: %w"
	migrationsCompleteMessageConstant    = "history migrations complete"
	migrationProgressMessageConstant     = "history migration"
	logFieldSchemaVersionConstant        = "schema_version"
	logFieldDetailConstant               = "detail"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// ErrDatabasePathMissing indicates Open was called without a database path.
var ErrDatabasePathMissing = errors.New("history database path not provided")

// Open opens or creates the SQLite database at databasePath, creating parent
// directories as needed. ":memory:" opens a private in-memory database.
func Open(databasePath string) (*sql.DB, error) {
	trimmedPath := strings.TrimSpace(databasePath)
	if len(trimmedPath) == 0 {
		return nil, ErrDatabasePathMissing
	}

	if trimmedPath != inMemoryDatabasePathConstant {
		databaseDirectory := filepath.Dir(trimmedPath)
		if directoryError := os.MkdirAll(databaseDirectory, databaseDirectoryPermissionsConstant); directoryError != nil {
			return nil, fmt.Errorf(directoryErrorTemplateConstant, databaseDirectory, directoryError)
		}
	}

	database, openError := sql.Open(sqliteDriverNameConstant, trimmedPath)
	if openError != nil {
		return nil, fmt.Errorf(openDatabaseErrorTemplateConstant, trimmedPath, openError)
	}

	// Each connection to ":memory:" sees a separate database.
	database.SetMaxOpenConns(1)

	if pingError := database.Ping(); pingError != nil {
		_ = database.Close()
		return nil, fmt.Errorf(pingDatabaseErrorTemplateConstant, trimmedPath, pingError)
	}

	if _, pragmaError := database.Exec(foreignKeysPragmaConstant); pragmaError != nil {
		_ = database.Close()
		return nil, fmt.Errorf(pragmaErrorTemplateConstant, pragmaError)
	}

	return database, nil
}

// Migrate applies every pending embedded migration and returns the resulting schema version.
func Migrate(database *sql.DB, logger *zap.Logger) (int64, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	goose.SetBaseFS(embeddedMigrations)
	goose.SetLogger(gooseLogger{logger: logger})
	if dialectError := goose.SetDialect(gooseDialectConstant); dialectError != nil {
		return 0, fmt.Errorf(dialectErrorTemplateConstant, dialectError)
	}

	if migrationError := goose.Up(database, migrationsDirectoryConstant); migrationError != nil {
		return 0, fmt.Errorf(migrationErrorTemplateConstant, migrationError)
	}

	schemaVersion, versionError := goose.GetDBVersion(database)
	if versionError != nil {
		return 0, fmt.Errorf(versionErrorTemplateConstant, versionError)
	}

	logger.Debug(migrationsCompleteMessageConstant, zap.Int64(logFieldSchemaVersionConstant, schemaVersion))
	return schemaVersion, nil
}

// gooseLogger routes goose progress output into zap instead of standard output.
type gooseLogger struct {
	logger *zap.Logger
}

func (adapter gooseLogger) Printf(format string, arguments ...interface{}) {
	adapter.logger.Debug(migrationProgressMessageConstant, zap.String(logFieldDetailConstant, strings.TrimSpace(fmt.Sprintf(format, arguments...))))
}

func (adapter gooseLogger) Fatalf(format string, arguments ...interface{}) {
	adapter.logger.Error(migrationProgressMessageConstant, zap.String(logFieldDetailConstant, strings.TrimSpace(fmt.Sprintf(format, arguments...))))
}
