package batchlab

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexibench/batchlab/internal/batchapi"
	"github.com/lexibench/batchlab/internal/config"
	"github.com/lexibench/batchlab/internal/execute"
	"github.com/lexibench/batchlab/internal/stage"
	"github.com/lexibench/batchlab/internal/tracking"
)

const (
	trackingTableHeaderFormat = "%-20s %-40s %-14s %-20s\n"
	trackingTableRowFormat    = "%-20s %-40s %-14s %-20s\n"
	trackingSummaryFormat     = "%s: %d\n"
	trackingEmptyMessage      = "No batches in tracking."
)

func newExecuteCommand() *cobra.Command {
	pollInterval := execute.DefaultPollInterval

	command := &cobra.Command{
		Use:   executeCommandUse,
		Short: executeCommandShort,
		Args:  cobra.ExactArgs(commandArgumentCount),
		RunE: func(command *cobra.Command, args []string) error {
			return runExecute(command, args[0], args[1], pollInterval)
		},
	}
	command.Flags().DurationVar(&pollInterval, pollIntervalFlagName, execute.DefaultPollInterval, pollIntervalFlagUsage)
	return command
}

func runExecute(command *cobra.Command, selector string, workspaceRoot string, pollInterval time.Duration) error {
	environment, environmentErr := newCommandEnvironment(workspaceRoot)
	if environmentErr != nil {
		return environmentErr
	}
	defer func() { _ = environment.logger.Sync() }()

	store := tracking.NewStore(environment.fileSystem, environment.paths.Results)
	normalizedSelector := strings.ToLower(strings.TrimSpace(selector))

	if normalizedSelector == selectorStatus {
		return printTrackingStatus(store)
	}

	apiKey, apiKeyErr := config.LoadAPIKey(environment.paths.Root)
	if apiKeyErr != nil {
		return apiKeyErr
	}

	executeStage := execute.Stage{
		FS:           environment.fileSystem,
		Paths:        environment.paths,
		Service:      batchapi.NewOpenAIService(apiKey),
		Store:        store,
		Failures:     environment.failureList(execute.StageName),
		Logger:       environment.logger,
		PollInterval: pollInterval,
		Clock:        environment.clock,
	}

	ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if normalizedSelector == selectorRemain {
		return executeStage.Poll(ctx)
	}

	dispatcher := stage.Dispatcher{
		Runner:   executeStage,
		Failures: executeStage.Failures,
		Logger:   environment.logger,
	}
	if dispatchErr := dispatcher.Dispatch(ctx, selector); dispatchErr != nil {
		return dispatchErr
	}
	return executeStage.Poll(ctx)
}

func printTrackingStatus(store *tracking.Store) error {
	records, loadErr := store.Load()
	if loadErr != nil {
		return loadErr
	}
	if len(records) == 0 {
		fmt.Println(trackingEmptyMessage)
		return nil
	}

	fmt.Printf(trackingTableHeaderFormat, "experiment", "batch_file", "status", "timestamp")
	statusCounts := map[string]int{}
	for _, record := range records {
		fmt.Printf(trackingTableRowFormat, record.Experiment, record.BatchFile, record.Status, record.Timestamp)
		statusCounts[record.Status]++
	}
	for status, count := range statusCounts {
		fmt.Printf(trackingSummaryFormat, status, count)
	}
	return nil
}
