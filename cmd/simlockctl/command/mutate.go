package command

import (
	"fmt"

	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/messaging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMutateCommand(v *viper.Viper) *cobra.Command {
	var (
		kind string
		op   uint64
		yes  bool
	)

	cmd := &cobra.Command{
		Use:   "mutate <entity>",
		Short: "Report a replication event for an entity",
		Long: `Report what the replication layer observed about an entity.

Kinds:
  change    an authoritative operation (--op); restarts the cooldown
  snapshot  a fresh authoritative snapshot taken at --op
  resync    the entity was brought back in line at --op
  desynced  a replica diverged and the entity awaits resync
  retire    the entity was destroyed

New entities are reported with the create command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := parseMutationKind(kind)
			if err != nil {
				return err
			}

			if mk == messaging.MutationRetire && !yes {
				ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("retire %s for good? [y/n] ", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			conn, transport, err := s.dial()
			if err != nil {
				return err
			}
			defer conn.Close()

			err = transport.PublishMutation(messaging.MutationMessage{Entity: entity.Id(args[0]), Kind: mk, Op: op})
			if err != nil {
				return err
			}
			return transport.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(messaging.MutationChange), "change, snapshot, resync, desynced or retire")
	cmd.Flags().Uint64Var(&op, "op", 0, "authoritative operation id")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "retire without asking")
	return cmd
}

func parseMutationKind(s string) (messaging.MutationKind, error) {
	switch k := messaging.MutationKind(s); k {
	case messaging.MutationChange, messaging.MutationSnapshot, messaging.MutationResync,
		messaging.MutationDesynced, messaging.MutationRetire:
		return k, nil
	}
	return "", fmt.Errorf("unknown mutation kind: %s", s)
}
