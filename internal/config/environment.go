package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// APIKeyEnvironmentVariableName is the variable holding the OpenAI key.
	APIKeyEnvironmentVariableName = "OPENAI_API_KEY"
	// EnvironmentFileName is the optional per-workspace env file.
	EnvironmentFileName = "apis.env"

	missingAPIKeyErrorFormat = "missing API key: set %s in the environment or in %s"
)

// LoadAPIKey resolves the OpenAI API key, preferring variables already set in
// the environment and falling back to the workspace apis.env file.
func LoadAPIKey(workspaceRoot string) (string, error) {
	environmentFilePath := filepath.Join(workspaceRoot, EnvironmentFileName)
	// Missing env file is fine; the variable may be exported directly.
	_ = godotenv.Load(environmentFilePath)

	environment := viper.New()
	environment.AutomaticEnv()

	apiKey := strings.TrimSpace(environment.GetString(APIKeyEnvironmentVariableName))
	if apiKey == "" {
		return "", fmt.Errorf(missingAPIKeyErrorFormat, APIKeyEnvironmentVariableName, environmentFilePath)
	}
	return apiKey, nil
}
