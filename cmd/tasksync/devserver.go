package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/tasksync/pkg/embedded"
)

func devserverCmd(opts *rootOptions) *cobra.Command {
	var (
		host, dbPath, accounts string
		port                   int
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local development backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			srv, err := embedded.New(embedded.Config{
				Host:         host,
				Port:         port,
				DBPath:       dbPath,
				AccountsFile: accounts,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dev backend listening on %s\n", srv.URL())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return srv.Stop()
		},
	}
	f := cmd.Flags()
	f.StringVar(&host, "host", "127.0.0.1", "host to bind")
	f.IntVar(&port, "port", 8000, "port to listen on (0 picks a free port)")
	f.StringVar(&dbPath, "db", "", "backend task database (default in memory)")
	f.StringVar(&accounts, "accounts-file", "", "accounts file restricting which owners may sync")
	return cmd
}
