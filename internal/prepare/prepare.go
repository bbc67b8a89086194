package prepare

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lexibench/batchlab/internal/batch"
	"github.com/lexibench/batchlab/internal/config"
	"github.com/lexibench/batchlab/internal/dataset"
	"github.com/lexibench/batchlab/internal/fsops"
	"github.com/lexibench/batchlab/internal/prompt"
	"github.com/lexibench/batchlab/internal/workspace"
)

const (
	// StageName identifies the preparer in failure lists and logs.
	StageName = "prepare"

	batchFilePermissions = 0o644

	noRowsErrorFormat      = "dataset %s produced no rows for column %q"
	encodeBatchErrorFormat = "encode batch file %s: %w"
	writeBatchErrorFormat  = "write batch file %s: %w"
)

// Stage renders dataset rows into chunked batch request files.
type Stage struct {
	FS     fsops.FS
	Paths  workspace.Paths
	Config config.Root
	Logger *zap.Logger
	Clock  func() time.Time
}

func (stage Stage) Name() string { return StageName }

// Experiments lists every configured experiment.
func (stage Stage) Experiments() ([]string, error) { return stage.Config.Names(), nil }

// Run prepares one experiment's batch files.
func (stage Stage) Run(ctx context.Context, experimentName string) error {
	experiment, findErr := stage.Config.Find(experimentName)
	if findErr != nil {
		return findErr
	}
	if validateErr := experiment.Validate(experimentName); validateErr != nil {
		return validateErr
	}

	template, templateErr := prompt.Load(stage.FS, filepath.Join(stage.Paths.Prompts, experiment.Prompt), experiment.PromptKey)
	if templateErr != nil {
		return templateErr
	}

	datasetPath := filepath.Join(stage.Paths.Data, experiment.DatasetName)
	rows, datasetErr := dataset.LoadColumn(stage.FS, datasetPath, experiment.DatasetColumn)
	if datasetErr != nil {
		return datasetErr
	}
	if len(rows) == 0 {
		return fmt.Errorf(noRowsErrorFormat, datasetPath, experiment.DatasetColumn)
	}

	requests := batch.Build(experimentName, rows, template, experiment)
	chunks := batch.Chunk(requests, experiment.ChunkSize)
	timestamp := stage.Clock()

	for chunkIndex, chunk := range chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fileName := batch.FileName(experimentName, chunkIndex, timestamp)
		content, encodeErr := batch.EncodeJSONL(chunk)
		if encodeErr != nil {
			return fmt.Errorf(encodeBatchErrorFormat, fileName, encodeErr)
		}
		filePath := filepath.Join(stage.Paths.Batches, fileName)
		if writeErr := stage.FS.WriteFile(filePath, content, batchFilePermissions); writeErr != nil {
			return fmt.Errorf(writeBatchErrorFormat, filePath, writeErr)
		}
		stage.Logger.Info("batch file written",
			zap.String("experiment", experimentName),
			zap.String("file", fileName),
			zap.Int("requests", len(chunk)))
	}

	stage.Logger.Info("experiment prepared",
		zap.String("experiment", experimentName),
		zap.Int("rows", len(rows)),
		zap.Int("batch_files", len(chunks)))
	return nil
}
