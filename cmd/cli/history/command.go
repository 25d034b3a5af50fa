package history

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/temirov/execrun/cmd/cli/execution"
	"github.com/temirov/execrun/internal/history"
	"github.com/temirov/execrun/internal/utils"
)

const (
	commandUseConstant              = "history"
	commandShortDescriptionConstant = "List recorded runs"
	commandLongDescriptionConstant  = "history prints the most recent runs stored in the history database, newest first."
	limitFlagNameConstant           = "limit"
	limitFlagDescriptionConstant    = "Maximum number of runs to list"
	defaultLimitConstant            = 20
	emptyHistoryMessageConstant     = "no runs recorded"
	missingExitCodeConstant         = "-"
	recentRunsErrorTemplateConstant = "unable to list runs: %w"
	renderErrorTemplateConstant     = "unable to print runs: %w"
	runIdentifierDisplayLength      = 8
	headerRunConstant               = "RUN"
	headerStartedConstant           = "STARTED"
	headerStatusConstant            = "STATUS"
	headerExitConstant              = "EXIT"
	headerLinesConstant             = "LINES"
	headerDurationConstant          = "DURATION"
	headerBatchConstant             = "BATCH"
	headerCommandConstant           = "COMMAND"
	tableCellPaddingConstant        = 1
	relativePastSuffixConstant      = "ago"
	relativeFutureSuffixConstant    = "from now"
)

// CommandBuilder assembles the history command.
type CommandBuilder struct {
	LoggerProvider        execution.LoggerProvider
	ConfigurationProvider func() history.Configuration
	Clock                 func() time.Time
}

// Build constructs the history command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().Int(limitFlagNameConstant, defaultLimitConstant, limitFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	limit, _ := command.Flags().GetInt(limitFlagNameConstant)

	configuration := history.Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	store, closeStore, storeError := execution.OpenHistoryStore(configuration, execution.ResolveLogger(builder.LoggerProvider))
	if storeError != nil {
		return storeError
	}
	defer func() { _ = closeStore() }()

	records, recentError := store.Recent(command.Context(), limit)
	if recentError != nil {
		return fmt.Errorf(recentRunsErrorTemplateConstant, recentError)
	}

	if renderError := builder.render(utils.NewFlushingWriter(command.OutOrStdout()), records); renderError != nil {
		return fmt.Errorf(renderErrorTemplateConstant, renderError)
	}
	return nil
}

func (builder *CommandBuilder) render(output io.Writer, records []history.Record) error {
	if len(records) == 0 {
		_, writeError := fmt.Fprintln(output, emptyHistoryMessageConstant)
		return writeError
	}

	now := time.Now()
	if builder.Clock != nil {
		now = builder.Clock()
	}

	runTable := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headerRunConstant, headerStartedConstant, headerStatusConstant, headerExitConstant, headerLinesConstant, headerDurationConstant, headerBatchConstant, headerCommandConstant).
		StyleFunc(func(row int, column int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, tableCellPaddingConstant)
			if row == table.HeaderRow {
				return style.Bold(true)
			}
			return style
		})

	for _, record := range records {
		runTable.Row(
			shortRunIdentifier(record.RunID),
			humanize.RelTime(record.StartedAt, now, relativePastSuffixConstant, relativeFutureSuffixConstant),
			record.Status,
			formatExitCode(record.ExitCode),
			humanize.Comma(int64(record.LineCount)),
			record.Duration.Round(time.Millisecond).String(),
			record.BatchName,
			record.Command,
		)
	}

	_, writeError := fmt.Fprintln(output, runTable.String())
	return writeError
}

func shortRunIdentifier(runIdentifier string) string {
	if len(runIdentifier) <= runIdentifierDisplayLength {
		return runIdentifier
	}
	return runIdentifier[:runIdentifierDisplayLength]
}

func formatExitCode(exitCode *int) string {
	if exitCode == nil {
		return missingExitCodeConstant
	}
	return strconv.Itoa(*exitCode)
}
