package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lexibench/batchlab/internal/fsops"
)

const (
	failureListFileNameFormat = "failed_%s.txt"
	failureListPermissions    = 0o644
)

// FailureList records experiment names that failed a stage, one per line.
// The backing file is removed once the list drains so a clean workspace
// carries no bookkeeping residue.
type FailureList struct {
	fileSystem fsops.FS
	path       string
}

// NewFailureList opens the failure list for a named stage.
func NewFailureList(fileSystem fsops.FS, failuresDirectory string, stageName string) *FailureList {
	fileName := fmt.Sprintf(failureListFileNameFormat, stageName)
	return &FailureList{
		fileSystem: fileSystem,
		path:       filepath.Join(failuresDirectory, fileName),
	}
}

// Load returns the recorded experiment names in file order.
func (list *FailureList) Load() ([]string, error) {
	content, readErr := list.fileSystem.ReadFile(list.path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, nil
		}
		return nil, readErr
	}
	var names []string
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names, nil
}

// Add appends an experiment unless it is already recorded.
func (list *FailureList) Add(experimentName string) error {
	names, loadErr := list.Load()
	if loadErr != nil {
		return loadErr
	}
	for _, name := range names {
		if name == experimentName {
			return nil
		}
	}
	return list.save(append(names, experimentName))
}

// Remove drops an experiment from the list if present.
func (list *FailureList) Remove(experimentName string) error {
	names, loadErr := list.Load()
	if loadErr != nil {
		return loadErr
	}
	var remaining []string
	for _, name := range names {
		if name != experimentName {
			remaining = append(remaining, name)
		}
	}
	if len(remaining) == len(names) {
		return nil
	}
	return list.save(remaining)
}

// Mark records the outcome of one experiment run.
func (list *FailureList) Mark(experimentName string, succeeded bool) error {
	if succeeded {
		return list.Remove(experimentName)
	}
	return list.Add(experimentName)
}

func (list *FailureList) save(names []string) error {
	if len(names) == 0 {
		removeErr := list.fileSystem.Remove(list.path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			return removeErr
		}
		return nil
	}
	content := strings.Join(names, "\n") + "\n"
	return list.fileSystem.WriteFile(list.path, []byte(content), failureListPermissions)
}
