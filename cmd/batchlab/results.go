package batchlab

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexibench/batchlab/internal/config"
	"github.com/lexibench/batchlab/internal/report"
	"github.com/lexibench/batchlab/internal/stage"
)

func newResultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   resultsCommandUse,
		Short: resultsCommandShort,
		Args:  cobra.ExactArgs(commandArgumentCount),
		RunE: func(command *cobra.Command, args []string) error {
			return runResults(command, args[0], args[1])
		},
	}
}

func runResults(command *cobra.Command, selector string, workspaceRoot string) error {
	environment, environmentErr := newCommandEnvironment(workspaceRoot)
	if environmentErr != nil {
		return environmentErr
	}
	defer func() { _ = environment.logger.Sync() }()

	dispatcher := stage.Dispatcher{
		Failures: environment.failureList(report.StageName),
		Logger:   environment.logger,
	}

	reportStage := report.Stage{
		FS:     environment.fileSystem,
		Paths:  environment.paths,
		Logger: environment.logger,
		Clock:  environment.clock,
	}
	dispatcher.Runner = reportStage

	if !strings.EqualFold(strings.TrimSpace(selector), selectorStatus) {
		rootConfiguration, configErr := config.Load(environment.fileSystem, environment.paths.ConfigFile)
		if configErr != nil {
			return configErr
		}
		reportStage.Config = rootConfiguration
		dispatcher.Runner = reportStage
	}

	return dispatcher.Dispatch(command.Context(), selector)
}
