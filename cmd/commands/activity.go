package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

// NewActivityCommand returns the activity subcommand.
func NewActivityCommand() *cli.Command {
	return &cli.Command{
		Name:  "activity",
		Usage: "Show the recent activity log",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "agent", Usage: "Filter by agent id"},
			&cli.IntFlag{Name: "limit", Usage: "Max rows", Value: 50},
		},
		Action: runActivity,
	}
}

func runActivity(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	acts, err := st.ListActivity(ctx, cmd.String("agent"), cmd.Int("limit"))
	if err != nil {
		return err
	}
	if len(acts) == 0 {
		fmt.Println("No activity recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tENTITY\tACTION\tDETAIL")
	for _, a := range acts {
		detail := a.Detail
		if detail == "" {
			detail = "-"
		}
		fmt.Fprintf(w, "%s\t%s/%s\t%s\t%s\n",
			a.Timestamp.Format("2006-01-02 15:04:05"),
			a.EntityType, a.EntityID, a.Action, detail)
	}
	return w.Flush()
}
