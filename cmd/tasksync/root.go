package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mistakeknot/tasksync/internal/config"
	"github.com/mistakeknot/tasksync/internal/logging"
	"github.com/mistakeknot/tasksync/internal/push"
	"github.com/mistakeknot/tasksync/internal/session"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tasksync",
		Short:         "Keep a local task cache in sync with the task backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $TASKSYNC_CONFIG or ~/.config/tasksync/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		pullCmd(opts),
		listCmd(opts),
		addCmd(opts),
		editCmd(opts),
		modifyCmd(opts),
		completeCmd(opts),
		deleteCmd(opts),
		deleteAllCmd(opts),
		pinCmd(opts),
		listenCmd(opts),
		devserverCmd(opts),
		initCmd(opts),
	)
	return root
}

func (o *rootOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.ResolvePath()
}

func (o *rootOptions) load(cmd *cobra.Command) (config.Config, *log.Logger, error) {
	cfg, err := config.Load(o.path())
	if err != nil {
		return config.Config{}, nil, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	return cfg, logging.New(logging.Options{Level: level, Writer: cmd.ErrOrStderr(), Prefix: "tasksync"}), nil
}

// withSession opens a session for the configured owner, runs fn and closes
// the session. The push channel is only opened when notifier is non-nil.
func (o *rootOptions) withSession(cmd *cobra.Command, notifier push.Notifier, fn func(ctx context.Context, s *session.Session) error) error {
	cfg, logger, err := o.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := session.Open(ctx, session.Config{
		DBPath:          cfg.DBPath,
		RequestTimeout:  cfg.RequestTimeout,
		BulkConcurrency: cfg.BulkConcurrency,
		Logger:          logger,
		Notifier:        notifier,
		DisablePush:     notifier == nil,
	}, cfg.Credentials())
	if err != nil {
		return fmt.Errorf("open session: %w (run `tasksync init --email you@example.com`)", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logger.Warn("close session", "err", cerr)
		}
	}()
	return fn(ctx, s)
}
