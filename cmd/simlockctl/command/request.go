package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pixil98/go-simlock/internal/driver"
	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRequestCommand(v *viper.Viper) *cobra.Command {
	var (
		kind ownership.Kind = ownership.KindExclusive
		hold bool
	)

	cmd := &cobra.Command{
		Use:   "request <entity>",
		Short: "Request a lock on an entity",
		Long: `Request a lock on an entity and print the authority's answer.

Without --hold a granted Exclusive lock outlives the command only for the
authority's linkless grace period, since the participant's connection closes
on exit. Release it sooner with the release command.
With --hold the lock is released and the session closed when the command is
interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			if err := s.requireParticipant(); err != nil {
				return err
			}
			return runRequest(cmd, s, entity.Id(args[0]), kind, hold)
		},
	}

	cmd.Flags().Var(&kindFlag{kind: &kind}, "kind", "lock kind: exclusive or transient")
	cmd.Flags().BoolVar(&hold, "hold", false, "keep a granted lock until interrupted")
	return cmd
}

func runRequest(cmd *cobra.Command, s settings, id entity.Id, kind ownership.Kind, hold bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, transport, err := s.dial()
	if err != nil {
		return err
	}
	defer conn.Close()
	defer transport.Close()

	coord, err := ownership.NewRequester(s.Participant, transport, ownership.WithRequestTimeout(s.Timeout))
	if err != nil {
		return err
	}
	if err := transport.ServeRequester(ctx, s.Participant, coord); err != nil {
		return err
	}
	if err := transport.Flush(); err != nil {
		return fmt.Errorf("flushing subscriptions: %w", err)
	}

	// Request timeouts are enforced by ticking the coordinator.
	tickCtx, cancelTicks := context.WithCancel(ctx)
	defer cancelTicks()
	go func() {
		_ = driver.NewDriver(driver.WithTicker("coordinator", coord)).Start(tickCtx)
	}()

	ticket, err := coord.RequestLock(ownership.LockRequest{Entity: id, Kind: kind})
	if err != nil {
		return err
	}
	res, err := ticket.Wait(ctx)
	if err != nil {
		coord.Cancel(context.Background(), ticket.Id())
		// The release Cancel may send is lost if the connection closes first.
		_ = transport.Flush()
		return err
	}

	if err := printJSON(cmd, res); err != nil {
		return err
	}
	if !res.Acquired || !hold || kind != ownership.KindExclusive {
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "holding %s, interrupt to release\n", id)
	<-ctx.Done()

	if err := coord.ReleaseLock(id, ""); err != nil {
		return fmt.Errorf("releasing %s: %w", id, err)
	}
	if err := transport.SendDisconnect(s.Participant); err != nil {
		return fmt.Errorf("sending disconnect: %w", err)
	}
	return transport.Flush()
}

// kindFlag adapts ownership.Kind to pflag.Value.
type kindFlag struct {
	kind *ownership.Kind
}

func (f *kindFlag) String() string {
	if f.kind == nil {
		return ""
	}
	return f.kind.String()
}

func (f *kindFlag) Set(s string) error {
	return f.kind.UnmarshalText([]byte(s))
}

func (f *kindFlag) Type() string {
	return "kind"
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}
