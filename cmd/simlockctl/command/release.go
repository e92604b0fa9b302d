package command

import (
	"context"
	"fmt"

	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReleaseCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "release <entity>",
		Short: "Release an Exclusive lock held by the participant",
		Long: `Release an Exclusive lock and print the authority's answer. The release is
refused unless the participant is the recorded holder.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			if err := s.requireParticipant(); err != nil {
				return err
			}

			conn, transport, err := s.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), s.Timeout)
			defer cancel()

			id := entity.Id(args[0])
			reply, err := transport.RequestRelease(ctx, ownership.ReleaseMessage{Entity: id, Participant: s.Participant})
			if err != nil {
				return fmt.Errorf("releasing %s: %w", id, err)
			}
			if err := printJSON(cmd, reply); err != nil {
				return err
			}
			if !reply.Released {
				return fmt.Errorf("releasing %s: %s", id, reply.Error)
			}
			return nil
		},
	}
}
