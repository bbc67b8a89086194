package batchlab

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexibench/batchlab/internal/config"
	"github.com/lexibench/batchlab/internal/prepare"
	"github.com/lexibench/batchlab/internal/stage"
)

func newPrepareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   prepareCommandUse,
		Short: prepareCommandShort,
		Args:  cobra.ExactArgs(commandArgumentCount),
		RunE: func(command *cobra.Command, args []string) error {
			return runPrepare(command, args[0], args[1])
		},
	}
}

func runPrepare(command *cobra.Command, selector string, workspaceRoot string) error {
	environment, environmentErr := newCommandEnvironment(workspaceRoot)
	if environmentErr != nil {
		return environmentErr
	}
	defer func() { _ = environment.logger.Sync() }()

	dispatcher := stage.Dispatcher{
		Failures: environment.failureList(prepare.StageName),
		Logger:   environment.logger,
	}

	prepareStage := prepare.Stage{
		FS:     environment.fileSystem,
		Paths:  environment.paths,
		Logger: environment.logger,
		Clock:  environment.clock,
	}
	dispatcher.Runner = prepareStage

	// Status inspects only the failure list, so a missing or broken
	// config.yaml must not stop it.
	if !strings.EqualFold(strings.TrimSpace(selector), selectorStatus) {
		rootConfiguration, configErr := config.Load(environment.fileSystem, environment.paths.ConfigFile)
		if configErr != nil {
			return configErr
		}
		prepareStage.Config = rootConfiguration
		dispatcher.Runner = prepareStage
	}

	return dispatcher.Dispatch(command.Context(), selector)
}
