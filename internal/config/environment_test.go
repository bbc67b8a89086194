package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lexibench/batchlab/internal/config"
)

const (
	environmentFilePermissions = 0o600
	sampleAPIKeyValue          = "sk-test-key"
)

func TestLoadAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv(config.APIKeyEnvironmentVariableName, sampleAPIKeyValue)

	apiKey, loadErr := config.LoadAPIKey(t.TempDir())
	if loadErr != nil {
		t.Fatalf("load api key: %v", loadErr)
	}
	if apiKey != sampleAPIKeyValue {
		t.Fatalf("expected %q, got %q", sampleAPIKeyValue, apiKey)
	}
}

func TestLoadAPIKeyFromEnvironmentFile(t *testing.T) {
	t.Setenv(config.APIKeyEnvironmentVariableName, "")
	os.Unsetenv(config.APIKeyEnvironmentVariableName)

	workspaceRoot := t.TempDir()
	environmentFilePath := filepath.Join(workspaceRoot, config.EnvironmentFileName)
	content := config.APIKeyEnvironmentVariableName + "=" + sampleAPIKeyValue + "\n"
	if err := os.WriteFile(environmentFilePath, []byte(content), environmentFilePermissions); err != nil {
		t.Fatalf("write environment file: %v", err)
	}

	apiKey, loadErr := config.LoadAPIKey(workspaceRoot)
	if loadErr != nil {
		t.Fatalf("load api key: %v", loadErr)
	}
	if apiKey != sampleAPIKeyValue {
		t.Fatalf("expected %q, got %q", sampleAPIKeyValue, apiKey)
	}
}

func TestLoadAPIKeyMissing(t *testing.T) {
	t.Setenv(config.APIKeyEnvironmentVariableName, "")
	os.Unsetenv(config.APIKeyEnvironmentVariableName)

	if _, err := config.LoadAPIKey(t.TempDir()); err == nil {
		t.Fatal("expected error when no API key is available")
	}
}
