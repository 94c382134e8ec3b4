package tests

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ExternalDependenciesSuite loads the settings the provider suites read:
// the RUN_FIREWORKS_TESTS / RUN_OLLAMA_TESTS / RUN_ASSEMBLYAI_TESTS gates,
// FIREWORKS_API_KEY and ASSEMBLYAI_API_KEY, and the OLLAMA_BASE_URL /
// ASSEMBLYAI_TEST_AUDIO_URL endpoints. The file is resolved from
// MINUTERO_SETTINGS_FILE, falling back to $HOME/.minutero.env; settings from
// the file override the process environment.
type ExternalDependenciesSuite struct {
	suite.Suite
	settingsFile string
}

func (s *ExternalDependenciesSuite) SetupSuite() {
	settingsFromEnv := strings.TrimSpace(os.Getenv("MINUTERO_SETTINGS_FILE"))
	settingsFile := settingsFromEnv
	if settingsFile == "" {
		homeDir, err := os.UserHomeDir()
		require.NoError(s.T(), err)
		settingsFile = filepath.Join(homeDir, ".minutero.env")
	}

	s.settingsFile = settingsFile

	if _, err := os.Stat(settingsFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && settingsFromEnv == "" {
			// No default settings file; the suites run off the plain
			// environment (and skip unless their gate is set).
			return
		}
		require.NoError(s.T(), err)
		return
	}

	require.NoError(s.T(), godotenv.Overload(settingsFile))
}

func (s *ExternalDependenciesSuite) SettingsFile() string {
	return s.settingsFile
}
