package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lexibench/batchlab/internal/fsops"
)

const (
	defaultDatasetColumn = "expression"
	defaultTopLogprobs   = 10
	defaultScaleMax      = 7
	defaultChunkSize     = 50000

	emptyExperimentsErrorMessage     = "no experiments found in %s"
	configurationReadErrorFormat     = "read configuration %s: %w"
	configurationUnmarshalFormat     = "unmarshal configuration %s: %w"
	missingRequiredFieldsErrorFormat = "experiment %s is missing required config fields: %s"
	unknownExperimentErrorFormat     = "experiment %q not found in %s; available experiments: %s"
)

// Root mirrors the experiments section of a workspace config.yaml.
type Root struct {
	Reference   string                `yaml:"-"`
	Experiments map[string]Experiment `yaml:"experiments"`
}

// Experiment describes one dataset + prompt + model pairing.
type Experiment struct {
	DatasetName   string  `yaml:"dataset_name"`
	DatasetColumn string  `yaml:"dataset_column"`
	Prompt        string  `yaml:"prompt"`
	PromptKey     string  `yaml:"prompt_key"`
	ModelName     string  `yaml:"model_name"`
	Temperature   float64 `yaml:"temperature"`
	TopLogprobs   int     `yaml:"top_logprobs"`
	ScaleMax      int     `yaml:"scale_max"`
	ChunkSize     int     `yaml:"chunk_size"`
}

// Load reads and validates the workspace configuration file.
func Load(fileSystem fsops.FS, path string) (Root, error) {
	content, readErr := fileSystem.ReadFile(path)
	if readErr != nil {
		return Root{}, fmt.Errorf(configurationReadErrorFormat, path, readErr)
	}

	var rootConfiguration Root
	if err := yaml.Unmarshal(content, &rootConfiguration); err != nil {
		return Root{}, fmt.Errorf(configurationUnmarshalFormat, path, err)
	}
	if len(rootConfiguration.Experiments) == 0 {
		return Root{}, fmt.Errorf(emptyExperimentsErrorMessage, path)
	}

	rootConfiguration.Reference = path
	for name, experiment := range rootConfiguration.Experiments {
		rootConfiguration.Experiments[name] = withDefaults(experiment)
	}
	return rootConfiguration, nil
}

func withDefaults(experiment Experiment) Experiment {
	if strings.TrimSpace(experiment.DatasetColumn) == "" {
		experiment.DatasetColumn = defaultDatasetColumn
	}
	if experiment.TopLogprobs <= 0 {
		experiment.TopLogprobs = defaultTopLogprobs
	}
	if experiment.ScaleMax <= 0 {
		experiment.ScaleMax = defaultScaleMax
	}
	if experiment.ChunkSize <= 0 {
		experiment.ChunkSize = defaultChunkSize
	}
	return experiment
}

// Names returns experiment names in deterministic order.
func (root Root) Names() []string {
	names := make([]string, 0, len(root.Experiments))
	for name := range root.Experiments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Find resolves an experiment by name, reporting the available names on miss.
func (root Root) Find(name string) (Experiment, error) {
	experiment, found := root.Experiments[name]
	if !found {
		return Experiment{}, fmt.Errorf(unknownExperimentErrorFormat, name, root.Reference, strings.Join(root.Names(), ", "))
	}
	return experiment, nil
}

// Validate reports the required fields an experiment definition lacks.
func (experiment Experiment) Validate(name string) error {
	var missingFields []string
	if strings.TrimSpace(experiment.DatasetName) == "" {
		missingFields = append(missingFields, "dataset_name")
	}
	if strings.TrimSpace(experiment.Prompt) == "" {
		missingFields = append(missingFields, "prompt")
	}
	if strings.TrimSpace(experiment.ModelName) == "" {
		missingFields = append(missingFields, "model_name")
	}
	if len(missingFields) == 0 {
		return nil
	}
	return fmt.Errorf(missingRequiredFieldsErrorFormat, name, strings.Join(missingFields, ", "))
}
