package batchlab

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lexibench/batchlab/internal/fsops"
	"github.com/lexibench/batchlab/internal/workspace"
)

// commandEnvironment bundles what every stage command needs to run.
type commandEnvironment struct {
	fileSystem fsops.FS
	paths      workspace.Paths
	logger     *zap.Logger
	clock      func() time.Time
}

func newCommandEnvironment(workspaceRoot string) (commandEnvironment, error) {
	fileSystem := fsops.NewOS()
	if !fsops.FileExists(fileSystem, workspaceRoot) {
		return commandEnvironment{}, fmt.Errorf(workspaceMissingErrorFormat, workspaceRoot)
	}

	paths := workspace.NewPaths(workspaceRoot)
	if err := paths.Ensure(fileSystem); err != nil {
		return commandEnvironment{}, err
	}

	logger := zap.Must(zap.NewProduction())
	return commandEnvironment{
		fileSystem: fileSystem,
		paths:      paths,
		logger:     logger,
		clock:      time.Now,
	}, nil
}

func (environment commandEnvironment) failureList(stageName string) *workspace.FailureList {
	return workspace.NewFailureList(environment.fileSystem, environment.paths.Failures, stageName)
}
