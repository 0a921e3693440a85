package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewTriggersCommand returns the triggers subcommand.
func NewTriggersCommand() *cli.Command {
	return &cli.Command{
		Name:  "triggers",
		Usage: "Inspect triggers",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List triggers",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Usage: "Filter by agent id"},
				},
				Action: runTriggersList,
			},
		},
		DefaultCommand: "list",
	}
}

func runTriggersList(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListTriggers(ctx, cmd.String("agent"))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No triggers found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tTASK\tENABLED\tLAST TRIGGERED")
	for _, tr := range list {
		last := "-"
		if tr.LastTriggered != nil {
			last = tr.LastTriggered.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			tr.ID, tr.Name, tr.Type, tr.TaskType, tr.Enabled, last)
	}
	return w.Flush()
}
