package command

import (
	"context"
	"fmt"

	"github.com/pixil98/go-simlock/internal/messaging"
	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newHoldsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "holds [participant]",
		Short: "List the locks the authority has granted",
		Long: `List every held lock as JSON, one entry per line. With a participant only
that participant's holds are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			var req messaging.HoldsRequest
			if len(args) == 1 {
				req.Participant = ownership.ParticipantId(args[0])
			}

			conn, transport, err := s.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), s.Timeout)
			defer cancel()

			entries, err := transport.RequestHolds(ctx, req)
			if err != nil {
				return fmt.Errorf("listing holds: %w", err)
			}
			for _, e := range entries {
				if err := printJSON(cmd, e); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
