package batch_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	batchcmd "github.com/temirov/execrun/cmd/cli/batch"
	"github.com/temirov/execrun/cmd/cli/execution"
	"github.com/temirov/execrun/internal/execshell"
	"github.com/temirov/execrun/internal/history"
	"github.com/temirov/execrun/internal/platform"
)

const testManifestTemplateConstant = `name: smoke
concurrency: 2
commands:
  - name: first
    script: "sleep 0.1; echo one"
  - name: second
    script: "echo two; echo warn >&2"
`

func executeBatchCommand(testInstance *testing.T, configuration batchcmd.Configuration, arguments ...string) (string, string, error) {
	testInstance.Helper()
	builder := batchcmd.CommandBuilder{
		LoggerProvider:        func() *zap.Logger { return zap.NewNop() },
		ConfigurationProvider: func() batchcmd.Configuration { return configuration },
		PlatformProvider:      func() platform.Platform { return platform.Linux },
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	var standardOutput bytes.Buffer
	var standardError bytes.Buffer
	command.SetOut(&standardOutput)
	command.SetErr(&standardError)
	command.SilenceUsage = true
	command.SilenceErrors = true
	command.SetArgs(arguments)

	executionError := command.ExecuteContext(context.Background())
	return standardOutput.String(), standardError.String(), executionError
}

func writeManifest(testInstance *testing.T, content string) string {
	testInstance.Helper()
	manifestPath := filepath.Join(testInstance.TempDir(), "batch.yaml")
	require.NoError(testInstance, os.WriteFile(manifestPath, []byte(content), 0o600))
	return manifestPath
}

func defaultBatchConfiguration() batchcmd.Configuration {
	return batchcmd.Configuration{Execution: execshell.Configuration{Timeout: 20 * time.Second, DrainGracePeriod: time.Second, TerminationGracePeriod: time.Second}}
}

func TestBatchCommandPrintsResultsInManifestOrder(testInstance *testing.T) {
	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}

	standardOutput, standardError, executionError := executeBatchCommand(testInstance, defaultBatchConfiguration(), writeManifest(testInstance, testManifestTemplateConstant))

	require.NoError(testInstance, executionError)
	require.Equal(testInstance, "==> first [completed]\n[stdout] one\n==> second [completed]\n[stdout] two\n", standardOutput)
	require.Equal(testInstance, "[stderr] warn\n", standardError)
}

func TestBatchCommandFailsWhenAnyEntryFails(testInstance *testing.T) {
	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}
	manifestPath := writeManifest(testInstance, "commands:\n  - name: ok\n    script: \"true\"\n  - name: broken\n    script: \"exit 4\"\n")

	_, _, executionError := executeBatchCommand(testInstance, defaultBatchConfiguration(), manifestPath)

	require.ErrorContains(testInstance, executionError, "1 of 2 batch commands failed")
	exitCode, hasExitCode := execution.ExitCode(executionError)
	require.True(testInstance, hasExitCode)
	require.Equal(testInstance, 1, exitCode)
}

func TestBatchCommandRecordsHistoryWithBatchName(testInstance *testing.T) {
	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}
	configuration := defaultBatchConfiguration()
	configuration.History = history.Configuration{Path: filepath.Join(testInstance.TempDir(), "history.db")}

	_, _, executionError := executeBatchCommand(testInstance, configuration, "--record", "--concurrency", "1", writeManifest(testInstance, testManifestTemplateConstant))
	require.NoError(testInstance, executionError)

	store, closeStore, storeError := execution.OpenHistoryStore(configuration.History, zap.NewNop())
	require.NoError(testInstance, storeError)
	defer func() { require.NoError(testInstance, closeStore()) }()

	records, recentError := store.Recent(context.Background(), 10)
	require.NoError(testInstance, recentError)
	require.Len(testInstance, records, 2)
	for _, record := range records {
		require.Equal(testInstance, "smoke", record.BatchName)
	}
}

func TestBatchCommandRequiresManifest(testInstance *testing.T) {
	_, _, missingPathError := executeBatchCommand(testInstance, defaultBatchConfiguration())
	require.EqualError(testInstance, missingPathError, "batch manifest path required")

	_, _, invalidManifestError := executeBatchCommand(testInstance, defaultBatchConfiguration(), writeManifest(testInstance, "name: empty\n"))
	require.ErrorContains(testInstance, invalidManifestError, "batch manifest must define at least one command")
}
