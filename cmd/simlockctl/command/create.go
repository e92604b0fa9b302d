package command

import (
	"fmt"

	"github.com/pixil98/go-simlock/internal/entity"
	"github.com/pixil98/go-simlock/internal/messaging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCreateCommand(v *viper.Viper) *cobra.Command {
	var (
		kind   string
		parent string
		name   string
		id     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Report a newly spawned entity",
		Long: `Report a new entity to the authority so it joins the directory. A random id
is generated unless --id is given; the id is printed either way.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := &entity.Entity{Kind: entity.Kind(kind), Name: name, Parent: entity.Id(parent)}
			if err := e.Validate(); err != nil {
				return err
			}

			eid := entity.Id(id)
			if eid.IsZero() {
				eid = entity.NewId()
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

			err = transport.PublishMutation(messaging.MutationMessage{Entity: eid, Kind: messaging.MutationCreate, Created: e})
			if err != nil {
				return err
			}
			if err := transport.Flush(); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), eid)
			return err
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(entity.KindSeat), "entity kind")
	cmd.Flags().StringVar(&parent, "parent", "", "id of the containing entity")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&id, "id", "", "entity id; generated when empty")
	return cmd
}
