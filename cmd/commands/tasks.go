package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/Jonnycatx/agentforge-runner/internal/tasks"
)

// NewTasksCommand returns the tasks subcommand.
func NewTasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect tasks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Usage: "Filter by agent id"},
					&cli.StringFlag{Name: "status", Usage: "Filter by status"},
					&cli.IntFlag{Name: "limit", Usage: "Max rows"},
				},
				Action: runTasksList,
			},
			{
				Name:  "stats",
				Usage: "Show task counts by status",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Usage: "Filter by agent id"},
				},
				Action: runTasksStats,
			},
		},
		DefaultCommand: "list",
	}
}

func runTasksList(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	status := cmd.String("status")
	if status != "" && !tasks.ValidStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}

	list, err := st.ListTasks(ctx, tasks.Filter{
		AgentID: cmd.String("agent"),
		Status:  status,
		Limit:   cmd.Int("limit"),
	})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAGENT\tTYPE\tSTATUS\tRETRIES\tCREATED")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			t.ID, t.AgentID, t.Type, t.Status, t.RetryCount,
			t.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runTasksStats(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.TaskStats(ctx, cmd.String("agent"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
	fmt.Fprintf(w, "scheduled\t%d\n", stats.Scheduled)
	fmt.Fprintf(w, "running\t%d\n", stats.Running)
	fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
	fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
	fmt.Fprintf(w, "cancelled\t%d\n", stats.Cancelled)
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	return w.Flush()
}
