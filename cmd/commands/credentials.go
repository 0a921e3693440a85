package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/Jonnycatx/agentforge-runner/internal/credentials"
)

// NewCredentialsCommand returns the credentials subcommand.
func NewCredentialsCommand() *cli.Command {
	return &cli.Command{
		Name:  "credentials",
		Usage: "Manage the encrypted credential vault",
		Commands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Store a credential",
				ArgsUsage: "<service> <key> <value>",
				Action:    runCredentialsSet,
			},
			{
				Name:      "get",
				Usage:     "Print a credential value",
				ArgsUsage: "<service> <key>",
				Action:    runCredentialsGet,
			},
			{
				Name:   "list",
				Usage:  "List stored credential names",
				Action: runCredentialsList,
			},
			{
				Name:      "rm",
				Usage:     "Remove a credential",
				ArgsUsage: "<service> <key>",
				Action:    runCredentialsRemove,
			},
		},
		DefaultCommand: "list",
	}
}

func openVault() (*credentials.Vault, error) {
	return credentials.Open(credentials.VaultPath(), credentials.KeyPath())
}

func runCredentialsSet(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 3 {
		return fmt.Errorf("usage: credentials set <service> <key> <value>")
	}
	v, err := openVault()
	if err != nil {
		return err
	}
	if err := v.Set(args.Get(0), args.Get(1), args.Get(2)); err != nil {
		return err
	}
	fmt.Printf("Stored %s/%s\n", args.Get(0), args.Get(1))
	return nil
}

func runCredentialsGet(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 2 {
		return fmt.Errorf("usage: credentials get <service> <key>")
	}
	v, err := openVault()
	if err != nil {
		return err
	}
	value, ok, err := v.Get(args.Get(0), args.Get(1))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no credential for %s/%s", args.Get(0), args.Get(1))
	}
	fmt.Println(value)
	return nil
}

func runCredentialsList(_ context.Context, _ *cli.Command) error {
	v, err := openVault()
	if err != nil {
		return err
	}
	names, err := v.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No credentials stored.")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runCredentialsRemove(_ context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 2 {
		return fmt.Errorf("usage: credentials rm <service> <key>")
	}
	v, err := openVault()
	if err != nil {
		return err
	}
	if err := v.Delete(args.Get(0), args.Get(1)); err != nil {
		return err
	}
	fmt.Printf("Removed %s/%s\n", args.Get(0), args.Get(1))
	return nil
}
