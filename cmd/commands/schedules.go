package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/Jonnycatx/agentforge-runner/internal/scheduler"
)

// NewSchedulesCommand returns the schedules subcommand.
func NewSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedules",
		Usage: "Inspect schedules and translate recurrence phrases",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List schedules",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "agent", Usage: "Filter by agent id"},
				},
				Action: runSchedulesList,
			},
			{
				Name:      "translate",
				Usage:     "Translate a natural-language phrase into a cron expression",
				ArgsUsage: "<phrase>",
				Action:    runSchedulesTranslate,
			},
			{
				Name:   "templates",
				Usage:  "List the built-in schedule templates",
				Action: runSchedulesTemplates,
			},
		},
		DefaultCommand: "list",
	}
}

func runSchedulesList(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListSchedules(ctx, cmd.String("agent"))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No schedules found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tWHEN\tTASK\tENABLED\tLAST RUN")
	for _, sch := range list {
		when := sch.CronExpr
		if !sch.Recurring() && sch.RunAt != nil {
			when = "once at " + sch.RunAt.Format("2006-01-02 15:04")
		}
		lastRun := "-"
		if sch.LastRun != nil {
			lastRun = sch.LastRun.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			sch.ID, sch.Name, when, sch.TaskType, sch.Enabled, lastRun)
	}
	return w.Flush()
}

func runSchedulesTranslate(_ context.Context, cmd *cli.Command) error {
	phrase := strings.Join(cmd.Args().Slice(), " ")
	if phrase == "" {
		return fmt.Errorf("phrase is required")
	}
	expr, err := scheduler.Translate(phrase)
	if err != nil {
		return err
	}
	fmt.Println(expr)
	return nil
}

func runSchedulesTemplates(_ context.Context, _ *cli.Command) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCRON\tDESCRIPTION")
	for _, t := range scheduler.Templates() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.CronExpr, t.Description)
	}
	return w.Flush()
}
