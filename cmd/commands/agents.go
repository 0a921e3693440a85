package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/Jonnycatx/agentforge-runner/internal/agents"
	"github.com/Jonnycatx/agentforge-runner/internal/store"
)

// NewAgentsCommand returns the agents subcommand.
func NewAgentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "agents",
		Usage: "Manage agents",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List agents",
				Action: runAgentsList,
			},
			{
				Name:  "add",
				Usage: "Create an agent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Agent name", Required: true},
					&cli.StringFlag{Name: "goal", Usage: "What the agent is for"},
					&cli.StringFlag{Name: "provider", Usage: "LLM provider"},
					&cli.StringFlag{Name: "model", Usage: "Model name"},
					&cli.IntFlag{Name: "autonomy", Usage: "Autonomy level (1-4)", Value: agents.DefaultAutonomy},
				},
				Action: runAgentsAdd,
			},
			{
				Name:      "rm",
				Usage:     "Delete an agent and everything it owns",
				ArgsUsage: "<agent-id>",
				Action:    runAgentsRemove,
			},
		},
		DefaultCommand: "list",
	}
}

func openStore(cmd *cli.Command) (*store.Store, error) {
	cfg := loadConfig(cmd)
	return store.Open(cfg.Store.Path)
}

func runAgentsList(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListAgents(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No agents found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAUTONOMY\tMODEL\tCREATED")
	for _, a := range list {
		model := a.Model
		if model == "" {
			model = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			a.ID, a.Name, a.AutonomyLevel, model, a.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runAgentsAdd(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now().UTC()
	a := &agents.Agent{
		ID:            agents.GenerateID(),
		Name:          cmd.String("name"),
		Goal:          cmd.String("goal"),
		Provider:      cmd.String("provider"),
		Model:         cmd.String("model"),
		AutonomyLevel: cmd.Int("autonomy"),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if err := st.CreateAgent(ctx, a); err != nil {
		return err
	}
	fmt.Printf("Created agent %s (%s)\n", a.Name, a.ID)
	return nil
}

func runAgentsRemove(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("agent id is required")
	}
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteAgent(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted agent %s\n", id)
	return nil
}
