package command

import (
	"context"

	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/messaging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newGuardCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "guard <entity>",
		Short: "Ask whether an entity may be deconstructed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			conn, transport, err := s.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), s.Timeout)
			defer cancel()

			d, err := transport.RequestGuard(ctx, messaging.GuardRequest{
				Target:      entity.Id(args[0]),
				Participant: s.Participant,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, d)
		},
	}
}
