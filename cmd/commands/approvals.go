package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/Jonnycatx/agentforge-runner/internal/approvals"
)

// NewApprovalsCommand returns the approvals subcommand.
func NewApprovalsCommand() *cli.Command {
	return &cli.Command{
		Name:  "approvals",
		Usage: "Inspect approval requests",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List approval requests",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "Filter by status", Value: approvals.StatusPending},
					&cli.BoolFlag{Name: "all", Usage: "Show all statuses"},
				},
				Action: runApprovalsList,
			},
		},
		DefaultCommand: "list",
	}
}

func runApprovalsList(ctx context.Context, cmd *cli.Command) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	status := cmd.String("status")
	if cmd.Bool("all") {
		status = ""
	}

	list, err := st.ListApprovals(ctx, status)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No approval requests found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAGENT\tACTION\tRISK\tSTATUS\tCREATED")
	for _, req := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			req.ID, req.AgentID, req.ActionType, req.RiskLevel, req.Status,
			req.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
