package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/Jonnycatx/agentforge-runner/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "runner",
		Usage: "Task orchestration and autonomy gating for local AI agents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewAgentsCommand(),
			NewTasksCommand(),
			NewSchedulesCommand(),
			NewTriggersCommand(),
			NewApprovalsCommand(),
			NewActivityCommand(),
			NewCredentialsCommand(),
		},
	}
}

// loadConfig reads the config file named by the --config flag, falling back
// to defaults when the file is missing.
func loadConfig(cmd *cli.Command) *config.Config {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Default()
	}
	return cfg
}
