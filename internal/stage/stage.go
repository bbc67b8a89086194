package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lexibench/batchlab/internal/workspace"
)

const (
	// SelectorAll runs every candidate experiment, previously failed first.
	SelectorAll = "all"
	// SelectorFailed re-runs only the stage's recorded failures.
	SelectorFailed = "failed"
	// SelectorStatus reports recorded failures without side effects.
	SelectorStatus = "status"

	statusHeaderFormat = "=== %s: failed experiments ===\n"
	statusEmptyMessage = "No failed experiments."
	statusEntryFormat  = "  %d. %s\n"
	summaryFormat      = "%s summary: %d succeeded, %d failed\n"
)

// Runner is one pipeline stage operating on a single experiment at a time.
type Runner interface {
	Name() string
	Experiments() ([]string, error)
	Run(ctx context.Context, experimentName string) error
}

// Dispatcher applies the shared selector grammar (name/all/failed/status) to
// a stage and keeps its failure list current.
type Dispatcher struct {
	Runner   Runner
	Failures *workspace.FailureList
	Logger   *zap.Logger
}

// Dispatch executes the stage for the given selector. Multi-experiment
// selectors continue past per-experiment failures and never return an error
// for them; a literal experiment name propagates its failure.
func (dispatcher Dispatcher) Dispatch(ctx context.Context, selector string) error {
	switch strings.ToLower(strings.TrimSpace(selector)) {
	case SelectorStatus:
		return dispatcher.reportStatus()
	case SelectorFailed:
		failedExperiments, loadErr := dispatcher.Failures.Load()
		if loadErr != nil {
			return loadErr
		}
		if len(failedExperiments) == 0 {
			fmt.Println(statusEmptyMessage)
			return nil
		}
		return dispatcher.runMany(ctx, failedExperiments)
	case SelectorAll:
		ordered, orderErr := dispatcher.failedFirstOrder()
		if orderErr != nil {
			return orderErr
		}
		return dispatcher.runMany(ctx, ordered)
	default:
		return dispatcher.runOne(ctx, selector)
	}
}

// failedFirstOrder lists every candidate experiment with previously failed
// ones ahead, so retries happen before new work.
func (dispatcher Dispatcher) failedFirstOrder() ([]string, error) {
	failedExperiments, loadErr := dispatcher.Failures.Load()
	if loadErr != nil {
		return nil, loadErr
	}
	allExperiments, experimentsErr := dispatcher.Runner.Experiments()
	if experimentsErr != nil {
		return nil, experimentsErr
	}

	failedSet := map[string]bool{}
	for _, name := range failedExperiments {
		failedSet[name] = true
	}
	ordered := append([]string(nil), failedExperiments...)
	for _, name := range allExperiments {
		if !failedSet[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered, nil
}

func (dispatcher Dispatcher) runOne(ctx context.Context, experimentName string) error {
	runErr := dispatcher.Runner.Run(ctx, experimentName)
	// An interrupted run is not a failed experiment; leave the list as it was.
	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	if markErr := dispatcher.Failures.Mark(experimentName, runErr == nil); markErr != nil {
		dispatcher.Logger.Warn("update failure list",
			zap.String("stage", dispatcher.Runner.Name()),
			zap.String("experiment", experimentName),
			zap.Error(markErr))
	}
	if runErr != nil {
		dispatcher.Logger.Error("experiment failed",
			zap.String("stage", dispatcher.Runner.Name()),
			zap.String("experiment", experimentName),
			zap.Error(runErr))
		return runErr
	}
	dispatcher.Logger.Info("experiment succeeded",
		zap.String("stage", dispatcher.Runner.Name()),
		zap.String("experiment", experimentName))
	return nil
}

func (dispatcher Dispatcher) runMany(ctx context.Context, experimentNames []string) error {
	succeededCount := 0
	failedCount := 0
	for _, experimentName := range experimentNames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if runErr := dispatcher.runOne(ctx, experimentName); runErr != nil {
			failedCount++
			continue
		}
		succeededCount++
	}
	fmt.Printf(summaryFormat, dispatcher.Runner.Name(), succeededCount, failedCount)
	return nil
}

func (dispatcher Dispatcher) reportStatus() error {
	failedExperiments, loadErr := dispatcher.Failures.Load()
	if loadErr != nil {
		return loadErr
	}
	fmt.Printf(statusHeaderFormat, dispatcher.Runner.Name())
	if len(failedExperiments) == 0 {
		fmt.Println(statusEmptyMessage)
		return nil
	}
	for index, experimentName := range failedExperiments {
		fmt.Printf(statusEntryFormat, index+1, experimentName)
	}
	return nil
}
