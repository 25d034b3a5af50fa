package execshell

import (
	"os/exec"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKillProcessIgnoresMissingAndExitedProcesses(testInstance *testing.T) {
	require.NoError(testInstance, killProcess(nil))

	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}

	command := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(testInstance, command.Start())
	require.NoError(testInstance, command.Wait())

	require.NoError(testInstance, killProcess(command.Process))
	require.NoError(testInstance, killProcess(command.Process))
}

func TestMergeCapturedLinesPlacesStandardErrorFirst(testInstance *testing.T) {
	standardErrorLines := []CapturedLine{{Stream: StreamStandardError, Sequence: 0, Text: "warning"}}
	standardOutputLines := []CapturedLine{
		{Stream: StreamStandardOutput, Sequence: 0, Text: "first"},
		{Stream: StreamStandardOutput, Sequence: 1, Text: "second"},
	}

	merged := mergeCapturedLines(standardErrorLines, standardOutputLines)

	require.Len(testInstance, merged, 3)
	require.Equal(testInstance, "warning", merged[0].Text)
	require.Equal(testInstance, "first", merged[1].Text)
	require.Equal(testInstance, "second", merged[2].Text)
}
