package workspace

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lexibench/batchlab/internal/fsops"
)

const (
	dataDirectoryName     = "data"
	promptsDirectoryName  = "prompts"
	batchesDirectoryName  = "batches"
	resultsDirectoryName  = "results"
	outputsDirectoryName  = "outputs"
	failuresDirectoryName = "failed_experiments"
	configurationFileName = "config.yaml"

	batchFileInfix      = "_batch_"
	resultFileInfix     = "_results_"
	batchFileExtension  = ".jsonl"
	directoryPermission = 0o755

	ensureDirectoryErrorFormat = "create workspace directory %s: %w"
)

// Paths is the canonical directory layout of an experiment workspace.
type Paths struct {
	Root       string
	Data       string
	Prompts    string
	Batches    string
	Results    string
	Outputs    string
	Failures   string
	ConfigFile string
}

// NewPaths derives the standard layout from a workspace root.
func NewPaths(root string) Paths {
	cleanedRoot := filepath.Clean(root)
	return Paths{
		Root:       cleanedRoot,
		Data:       filepath.Join(cleanedRoot, dataDirectoryName),
		Prompts:    filepath.Join(cleanedRoot, promptsDirectoryName),
		Batches:    filepath.Join(cleanedRoot, batchesDirectoryName),
		Results:    filepath.Join(cleanedRoot, resultsDirectoryName),
		Outputs:    filepath.Join(cleanedRoot, outputsDirectoryName),
		Failures:   filepath.Join(cleanedRoot, failuresDirectoryName),
		ConfigFile: filepath.Join(cleanedRoot, configurationFileName),
	}
}

// Ensure creates every workspace directory that is missing.
func (paths Paths) Ensure(fileSystem fsops.FS) error {
	directories := []string{paths.Data, paths.Prompts, paths.Batches, paths.Results, paths.Outputs, paths.Failures}
	for _, directory := range directories {
		if err := fileSystem.MkdirAll(directory, directoryPermission); err != nil {
			return fmt.Errorf(ensureDirectoryErrorFormat, directory, err)
		}
	}
	return nil
}

// BatchFiles lists an experiment's prepared batch file names.
func (paths Paths) BatchFiles(fileSystem fsops.FS, experimentName string) ([]string, error) {
	return listByPrefix(fileSystem, paths.Batches, experimentName+batchFileInfix)
}

// ResultFiles lists an experiment's downloaded result file names.
func (paths Paths) ResultFiles(fileSystem fsops.FS, experimentName string) ([]string, error) {
	return listByPrefix(fileSystem, paths.Results, experimentName+resultFileInfix)
}

// BatchExperiments returns the distinct experiment names that have at least
// one prepared batch file.
func (paths Paths) BatchExperiments(fileSystem fsops.FS) ([]string, error) {
	names, listErr := fileSystem.ListDir(paths.Batches)
	if listErr != nil {
		return nil, listErr
	}
	seen := map[string]bool{}
	var experiments []string
	for _, name := range names {
		infixIndex := strings.Index(name, batchFileInfix)
		if infixIndex <= 0 || !strings.HasSuffix(name, batchFileExtension) {
			continue
		}
		experimentName := name[:infixIndex]
		if seen[experimentName] {
			continue
		}
		seen[experimentName] = true
		experiments = append(experiments, experimentName)
	}
	sort.Strings(experiments)
	return experiments, nil
}

func listByPrefix(fileSystem fsops.FS, directory string, prefix string) ([]string, error) {
	names, listErr := fileSystem.ListDir(directory)
	if listErr != nil {
		return nil, listErr
	}
	var matches []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, batchFileExtension) {
			matches = append(matches, name)
		}
	}
	return matches, nil
}
