package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/tasksync/internal/push"
	"github.com/mistakeknot/tasksync/internal/session"
)

// printNotifier renders push notifications to w.
type printNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printNotifier) Notify(n push.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, renderNotification(n))
}

func listenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Follow the backend push channel and refresh on every completed job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			notifier := &printNotifier{w: cmd.OutOrStdout()}
			return opts.withSession(cmd, notifier, func(ctx context.Context, s *session.Session) error {
				ln := s.Listener()
				if ln.State() != push.StateConnected {
					return errors.New("push channel unavailable")
				}
				n, err := s.Coordinator().RefreshFromRemote(ctx)
				if err != nil {
					notifier.Notify(push.Notification{Level: push.LevelError, Text: err.Error()})
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(fmt.Sprintf("listening, %d tasks cached", n)))
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ln.Done():
					return errors.New("push channel closed")
				}
			})
		},
	}
}
