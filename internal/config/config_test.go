package config_test

import (
	"strings"
	"testing"

	"github.com/lexibench/batchlab/internal/config"
	"github.com/lexibench/batchlab/internal/fsops"
)

const (
	configurationPath        = "/workspace/config.yaml"
	configurationPermissions = 0o644
	sampleConfiguration      = `experiments:
  familiarity:
    dataset_name: expressions.csv
    prompt: familiarity.txt
    model_name: gpt-4o-mini
  concreteness:
    dataset_name: nouns.xlsx
    dataset_column: noun
    prompt: concreteness.txt
    prompt_key: "[word]"
    model_name: gpt-4o
    temperature: 0.2
    top_logprobs: 5
    scale_max: 5
    chunk_size: 100
`
	emptyConfiguration = "experiments: {}\n"
)

func writeConfiguration(t *testing.T, content string) fsops.FS {
	t.Helper()
	fileSystem := fsops.NewMem()
	if err := fileSystem.WriteFile(configurationPath, []byte(content), configurationPermissions); err != nil {
		t.Fatalf("write configuration: %v", err)
	}
	return fileSystem
}

func TestLoadAppliesDefaults(t *testing.T) {
	fileSystem := writeConfiguration(t, sampleConfiguration)

	rootConfiguration, loadErr := config.Load(fileSystem, configurationPath)
	if loadErr != nil {
		t.Fatalf("load configuration: %v", loadErr)
	}

	familiarity, findErr := rootConfiguration.Find("familiarity")
	if findErr != nil {
		t.Fatalf("find familiarity: %v", findErr)
	}
	if familiarity.DatasetColumn != "expression" {
		t.Fatalf("expected default dataset column, got %q", familiarity.DatasetColumn)
	}
	if familiarity.TopLogprobs != 10 || familiarity.ScaleMax != 7 || familiarity.ChunkSize != 50000 {
		t.Fatalf("unexpected defaults: %+v", familiarity)
	}

	concreteness, findErr := rootConfiguration.Find("concreteness")
	if findErr != nil {
		t.Fatalf("find concreteness: %v", findErr)
	}
	if concreteness.DatasetColumn != "noun" || concreteness.TopLogprobs != 5 || concreteness.ScaleMax != 5 || concreteness.ChunkSize != 100 {
		t.Fatalf("explicit values overridden: %+v", concreteness)
	}
}

func TestLoadRejectsEmptyExperiments(t *testing.T) {
	fileSystem := writeConfiguration(t, emptyConfiguration)

	if _, err := config.Load(fileSystem, configurationPath); err == nil {
		t.Fatal("expected error for empty experiments section")
	}
}

func TestLoadMissingFile(t *testing.T) {
	fileSystem := fsops.NewMem()

	if _, err := config.Load(fileSystem, configurationPath); err == nil {
		t.Fatal("expected error for missing configuration file")
	}
}

func TestFindReportsAvailableExperiments(t *testing.T) {
	fileSystem := writeConfiguration(t, sampleConfiguration)

	rootConfiguration, loadErr := config.Load(fileSystem, configurationPath)
	if loadErr != nil {
		t.Fatalf("load configuration: %v", loadErr)
	}

	_, findErr := rootConfiguration.Find("unknown")
	if findErr == nil {
		t.Fatal("expected error for unknown experiment")
	}
	if !strings.Contains(findErr.Error(), "concreteness") || !strings.Contains(findErr.Error(), "familiarity") {
		t.Fatalf("expected available experiments in error, got %v", findErr)
	}
}

func TestValidateListsMissingFields(t *testing.T) {
	testCases := []struct {
		name          string
		experiment    config.Experiment
		missingFields []string
	}{
		{
			name:          "all fields missing",
			experiment:    config.Experiment{},
			missingFields: []string{"dataset_name", "prompt", "model_name"},
		},
		{
			name: "model missing",
			experiment: config.Experiment{
				DatasetName: "expressions.csv",
				Prompt:      "familiarity.txt",
			},
			missingFields: []string{"model_name"},
		},
		{
			name: "complete",
			experiment: config.Experiment{
				DatasetName: "expressions.csv",
				Prompt:      "familiarity.txt",
				ModelName:   "gpt-4o-mini",
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			validationErr := testCase.experiment.Validate(testCase.name)
			if len(testCase.missingFields) == 0 {
				if validationErr != nil {
					t.Fatalf("expected valid experiment, got %v", validationErr)
				}
				return
			}
			if validationErr == nil {
				t.Fatal("expected validation error")
			}
			for _, field := range testCase.missingFields {
				if !strings.Contains(validationErr.Error(), field) {
					t.Fatalf("expected %s in error, got %v", field, validationErr)
				}
			}
		})
	}
}
