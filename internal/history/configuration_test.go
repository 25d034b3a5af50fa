package history_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/execrun/internal/history"
)

func TestConfigurationResolvedPath(testInstance *testing.T) {
	homeDirectory := testInstance.TempDir()
	testInstance.Setenv("HOME", homeDirectory)
	testInstance.Setenv("USERPROFILE", homeDirectory)

	testCases := []struct {
		name         string
		path         string
		expectedPath string
	}{
		{name: "empty_uses_default", path: "  ", expectedPath: filepath.Join(homeDirectory, ".execrun", "history.db")},
		{name: "home_prefix_expanded", path: "~/runs/history.db", expectedPath: filepath.Join(homeDirectory, "runs", "history.db")},
		{name: "absolute_kept", path: "/var/lib/execrun.db", expectedPath: "/var/lib/execrun.db"},
		{name: "in_memory_kept", path: ":memory:", expectedPath: ":memory:"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedPath, history.Configuration{Path: testCase.path}.ResolvedPath())
		})
	}
}

func TestDefaultConfigurationValues(testInstance *testing.T) {
	defaults := history.DefaultConfigurationValues("history")
	require.Equal(testInstance, false, defaults["history.enabled"])
	require.NotEmpty(testInstance, defaults["history.path"])
}
