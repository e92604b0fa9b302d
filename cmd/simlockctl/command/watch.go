package command

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newWatchCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print lock state changes as they are broadcast",
		Long: `Print every lock state change broadcast by the authority as one JSON object
per line. A local replica of the lock table is kept and any inconsistency
it detects is reported on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conn, transport, err := s.dial()
			if err != nil {
				return err
			}
			defer conn.Close()
			defer transport.Close()

			changes := make(chan ownership.StateChange, 64)
			err = transport.WatchState(ctx, func(_ context.Context, sc ownership.StateChange) {
				select {
				case changes <- sc:
				case <-ctx.Done():
				}
			})
			if err != nil {
				return err
			}

			return watchLoop(ctx, cmd, ownership.NewReplica(), changes)
		},
	}
}

func watchLoop(ctx context.Context, cmd *cobra.Command, replica *ownership.Replica, changes <-chan ownership.StateChange) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sc := <-changes:
			if err := replica.Apply(ctx, sc); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "replica: %v\n", err)
			}
			if err := printJSON(cmd, sc); err != nil {
				return err
			}
		}
	}
}
