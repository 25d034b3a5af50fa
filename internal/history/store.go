package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/utils"
)

const (
	insertRunStatementConstant = `INSERT INTO runs (
    run_id, batch_name, command, working_directory, status, exit_code,
    line_count, truncated, abandoned_streams, started_at, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	selectRecentRunsStatementConstant = `SELECT
    run_id, batch_name, command, working_directory, status, exit_code,
    line_count, truncated, abandoned_streams, started_at, duration_ms
FROM runs
ORDER BY started_at DESC, rowid DESC
LIMIT ?`
	abandonedStreamsSeparatorConstant = ","
	commandArgumentsSeparatorConstant = " "
	recordInsertErrorTemplateConstant = "recording run %s: %w"
	recentQueryErrorTemplateConstant  = "querying recent runs: %w"
	recentScanErrorTemplateConstant   = "reading recent run: %w"
	runRecordedMessageConstant        = "run recorded"
	logFieldRunIdentifierConstant     = "run_id"
	logFieldBatchNameConstant         = "batch"
)

var (
	// ErrDatabaseNotConfigured indicates the store was constructed without a database handle.
	ErrDatabaseNotConfigured = errors.New("history database not configured")
	// ErrNonPositiveLimit indicates Recent was asked for zero or fewer records.
	ErrNonPositiveLimit = errors.New("history limit must be positive")
)

// Record is one persisted run.
type Record struct {
	RunID            string
	BatchName        string
	Command          string
	WorkingDirectory string
	Status           string
	ExitCode         *int
	LineCount        int
	Truncated        bool
	AbandonedStreams []string
	StartedAt        time.Time
	Duration         time.Duration
}

// Store reads and writes run records.
type Store struct {
	database        *sql.DB
	logger          *zap.Logger
	contextAccessor utils.CommandContextAccessor
}

// NewStore wraps a migrated database handle.
func NewStore(database *sql.DB, logger *zap.Logger) (*Store, error) {
	if database == nil {
		return nil, ErrDatabaseNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{database: database, logger: logger, contextAccessor: utils.NewCommandContextAccessor()}, nil
}

// Record persists the outcome of spec. A batch name attached to executionContext is stored alongside it.
func (store *Store) Record(executionContext context.Context, spec execshell.CommandSpec, result execshell.ExecutionResult) error {
	batchName, _ := store.contextAccessor.BatchName(executionContext)

	abandonedStreamNames := make([]string, 0, len(result.AbandonedStreams))
	for _, abandonedStream := range result.AbandonedStreams {
		abandonedStreamNames = append(abandonedStreamNames, abandonedStream.String())
	}

	var exitCode sql.NullInt64
	if result.HasExitCode() {
		exitCode = sql.NullInt64{Int64: int64(*result.ExitCode), Valid: true}
	}

	_, insertError := store.database.ExecContext(
		executionContext,
		insertRunStatementConstant,
		result.RunID,
		batchName,
		strings.Join(spec.Arguments(), commandArgumentsSeparatorConstant),
		spec.WorkingDirectory(),
		result.Status.String(),
		exitCode,
		len(result.Lines),
		result.Truncated,
		strings.Join(abandonedStreamNames, abandonedStreamsSeparatorConstant),
		result.StartedAt.UnixNano(),
		result.Duration.Milliseconds(),
	)
	if insertError != nil {
		return fmt.Errorf(recordInsertErrorTemplateConstant, result.RunID, insertError)
	}

	store.logger.Debug(runRecordedMessageConstant, zap.String(logFieldRunIdentifierConstant, result.RunID), zap.String(logFieldBatchNameConstant, batchName))
	return nil
}

// Recent returns up to limit records, newest first.
func (store *Store) Recent(executionContext context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, ErrNonPositiveLimit
	}

	rows, queryError := store.database.QueryContext(executionContext, selectRecentRunsStatementConstant, limit)
	if queryError != nil {
		return nil, fmt.Errorf(recentQueryErrorTemplateConstant, queryError)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record           Record
			exitCode         sql.NullInt64
			abandonedStreams string
			startedAtNanos   int64
			durationMillis   int64
		)
		scanError := rows.Scan(
			&record.RunID,
			&record.BatchName,
			&record.Command,
			&record.WorkingDirectory,
			&record.Status,
			&exitCode,
			&record.LineCount,
			&record.Truncated,
			&abandonedStreams,
			&startedAtNanos,
			&durationMillis,
		)
		if scanError != nil {
			return nil, fmt.Errorf(recentScanErrorTemplateConstant, scanError)
		}
		if exitCode.Valid {
			exitCodeValue := int(exitCode.Int64)
			record.ExitCode = &exitCodeValue
		}
		if len(abandonedStreams) > 0 {
			record.AbandonedStreams = strings.Split(abandonedStreams, abandonedStreamsSeparatorConstant)
		}
		record.StartedAt = time.Unix(0, startedAtNanos)
		record.Duration = time.Duration(durationMillis) * time.Millisecond
		records = append(records, record)
	}
	if rowsError := rows.Err(); rowsError != nil {
		return nil, fmt.Errorf(recentScanErrorTemplateConstant, rowsError)
	}

	return records, nil
}
