package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/tasksync/internal/cli"
)

func initCmd(opts *rootOptions) *cobra.Command {
	var (
		email, backendURL, accounts string
		force                       bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with a new owner identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cli.InitConfig(cli.InitOptions{
				ConfigPath:   opts.path(),
				Email:        email,
				BackendURL:   backendURL,
				AccountsFile: accounts,
				Force:        force,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Created {
				fmt.Fprintf(out, "Wrote identity for %s to %s\n", res.Config.Session.Email, opts.path())
			} else {
				fmt.Fprintf(out, "Identity for %s already present in %s\n", res.Config.Session.Email, opts.path())
			}
			fmt.Fprintf(out, "uuid: %s\nbackend: %s\n", res.Config.Session.UUID, res.Config.BackendURL)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&email, "email", "", "owner email")
	f.StringVar(&backendURL, "backend-url", "", "backend base URL")
	f.StringVar(&accounts, "accounts-file", "", "register the owner in this dev backend accounts file")
	f.BoolVar(&force, "force", false, "replace an existing identity")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
