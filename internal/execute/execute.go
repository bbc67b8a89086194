package execute

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lexibench/batchlab/internal/batchapi"
	"github.com/lexibench/batchlab/internal/fsops"
	"github.com/lexibench/batchlab/internal/tracking"
	"github.com/lexibench/batchlab/internal/workspace"
)

const (
	// StageName identifies the executor in failure lists and logs.
	StageName = "execute"

	// DefaultPollInterval matches the remote API's coarse batch cadence.
	DefaultPollInterval = 120 * time.Second

	resultFileFormat    = "%s_results_%s_%s.jsonl"
	resultFileTimestamp = "2006-01-02-15-04"
	trackingTimestamp   = "2006-01-02 15:04:05"
	resultPermissions   = 0o644

	noBatchFilesErrorFormat = "no batch files found for experiment %q in %s"
	allSubmissionsFailedFmt = "all %d batch submissions failed for experiment %q"
	writeResultErrorFormat  = "write result file %s: %w"
)

// Stage submits prepared batch files and tracks them until they terminate.
type Stage struct {
	FS           fsops.FS
	Paths        workspace.Paths
	Service      batchapi.Service
	Store        *tracking.Store
	Failures     *workspace.FailureList
	Logger       *zap.Logger
	PollInterval time.Duration
	Clock        func() time.Time
}

func (stage Stage) Name() string { return StageName }

// Experiments lists the experiments that have prepared batch files.
func (stage Stage) Experiments() ([]string, error) {
	return stage.Paths.BatchExperiments(stage.FS)
}

// Run submits every untracked batch file of one experiment. Files whose
// content hash is already tracked are skipped so re-invocations never
// duplicate remote batches.
func (stage Stage) Run(ctx context.Context, experimentName string) error {
	batchFiles, listErr := stage.Paths.BatchFiles(stage.FS, experimentName)
	if listErr != nil {
		return listErr
	}
	if len(batchFiles) == 0 {
		return fmt.Errorf(noBatchFilesErrorFormat, experimentName, stage.Paths.Batches)
	}

	submissionFailures := 0
	for _, batchFileName := range batchFiles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		content, readErr := stage.FS.ReadFile(filepath.Join(stage.Paths.Batches, batchFileName))
		if readErr != nil {
			return readErr
		}
		fileHash := tracking.HashBytes(content)

		alreadyTracked, hasErr := stage.Store.Has(experimentName, batchFileName, fileHash)
		if hasErr != nil {
			return hasErr
		}
		if alreadyTracked {
			stage.Logger.Info("batch file already tracked, skipping submission",
				zap.String("experiment", experimentName),
				zap.String("file", batchFileName))
			continue
		}

		batchID, submitErr := stage.Service.SubmitBatchFile(ctx, batchFileName, content)
		if submitErr != nil {
			submissionFailures++
			stage.Logger.Error("batch submission failed",
				zap.String("experiment", experimentName),
				zap.String("file", batchFileName),
				zap.Error(submitErr))
			continue
		}

		appendErr := stage.Store.Append(tracking.Record{
			Experiment: experimentName,
			BatchFile:  batchFileName,
			BatchID:    batchID,
			Status:     batchapi.StatusSubmitted,
			Timestamp:  stage.Clock().Format(trackingTimestamp),
			FileHash:   fileHash,
		})
		if appendErr != nil {
			return appendErr
		}
		stage.Logger.Info("batch submitted",
			zap.String("experiment", experimentName),
			zap.String("file", batchFileName),
			zap.String("batch_id", batchID))
	}

	if submissionFailures == len(batchFiles) {
		return fmt.Errorf(allSubmissionsFailedFmt, len(batchFiles), experimentName)
	}
	return nil
}

// Poll watches tracked batches until none remain or the context ends,
// downloading completed outputs and writing off terminal failures.
func (stage Stage) Poll(ctx context.Context) error {
	for {
		records, loadErr := stage.Store.Load()
		if loadErr != nil {
			return loadErr
		}
		if len(records) == 0 {
			stage.Logger.Info("no batches left in tracking")
			return nil
		}

		if err := stage.CheckOnce(ctx, records); err != nil {
			return err
		}

		records, loadErr = stage.Store.Load()
		if loadErr != nil {
			return loadErr
		}
		if len(records) == 0 {
			stage.Logger.Info("all tracked batches resolved")
			return nil
		}

		stage.Logger.Info("waiting before next poll",
			zap.Int("pending_batches", len(records)),
			zap.Duration("interval", stage.pollInterval()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stage.pollInterval()):
		}
	}
}

// CheckOnce inspects each tracked batch exactly once.
func (stage Stage) CheckOnce(ctx context.Context, records []tracking.Record) error {
	for _, record := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		state, stateErr := stage.Service.BatchState(ctx, record.BatchID)
		if stateErr != nil {
			if errors.Is(stateErr, context.Canceled) || errors.Is(stateErr, context.DeadlineExceeded) {
				return stateErr
			}
			stage.Logger.Error("batch status check failed",
				zap.String("batch_id", record.BatchID),
				zap.Error(stateErr))
			continue
		}

		if state.Status != record.Status {
			stage.Logger.Info("batch status changed",
				zap.String("batch_id", record.BatchID),
				zap.String("experiment", record.Experiment),
				zap.String("from", record.Status),
				zap.String("to", state.Status))
			if err := stage.Store.UpdateStatus(record.BatchID, state.Status); err != nil {
				return err
			}
		}

		switch {
		case state.Completed():
			if err := stage.downloadCompleted(ctx, record, state); err != nil {
				stage.Logger.Error("batch download failed",
					zap.String("batch_id", record.BatchID),
					zap.Error(err))
			}
		case state.Terminated():
			stage.Logger.Warn("batch terminated without output",
				zap.String("batch_id", record.BatchID),
				zap.String("experiment", record.Experiment),
				zap.String("status", state.Status))
			if err := stage.Failures.Add(record.Experiment); err != nil {
				return err
			}
			if err := stage.Store.Remove(record.BatchID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (stage Stage) downloadCompleted(ctx context.Context, record tracking.Record, state batchapi.State) error {
	content, downloadErr := stage.Service.DownloadOutput(ctx, state.OutputFileID)
	if downloadErr != nil {
		return downloadErr
	}

	resultFileName := fmt.Sprintf(resultFileFormat, record.Experiment, record.BatchID, stage.Clock().Format(resultFileTimestamp))
	resultPath := filepath.Join(stage.Paths.Results, resultFileName)
	if writeErr := stage.FS.WriteFile(resultPath, content, resultPermissions); writeErr != nil {
		return fmt.Errorf(writeResultErrorFormat, resultPath, writeErr)
	}
	stage.Logger.Info("batch results downloaded",
		zap.String("experiment", record.Experiment),
		zap.String("batch_id", record.BatchID),
		zap.String("file", resultFileName))

	// The record leaves tracking only after the download landed on disk.
	if err := stage.Store.Remove(record.BatchID); err != nil {
		return err
	}
	return stage.Failures.Remove(record.Experiment)
}

func (stage Stage) pollInterval() time.Duration {
	if stage.PollInterval > 0 {
		return stage.PollInterval
	}
	return DefaultPollInterval
}
