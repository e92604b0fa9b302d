package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pixil98/go-simlock/internal/messaging"
	"github.com/pixil98/go-simlock/internal/ownership"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyNatsURL       = "nats_url"
	keyParticipant   = "participant"
	keySubjectPrefix = "subject_prefix"
	keyTimeout       = "timeout"
)

// settings are the connection parameters shared by every subcommand.
type settings struct {
	NatsURL       string
	Participant   ownership.ParticipantId
	SubjectPrefix string
	Timeout       time.Duration
}

// NewRootCommand builds the simlockctl command tree. Flags override
// SIMLOCK_* environment variables.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetDefault(keyNatsURL, nats.DefaultURL)
	v.SetDefault(keySubjectPrefix, messaging.DefaultSubjectPrefix)
	v.SetDefault(keyTimeout, "5s")
	v.SetEnvPrefix("SIMLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "simlockctl",
		Short: "Talk to a simlock authority as a participant",
		Long: `simlockctl joins the simlock NATS bus as a participant. It can request and
release entity locks, list current holds, ask whether an entity may be
deconstructed, report replication events and watch lock state changes.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("nats-url", "", "NATS server url (env SIMLOCK_NATS_URL)")
	flags.StringP("participant", "p", "", "participant id (env SIMLOCK_PARTICIPANT)")
	flags.String("subject-prefix", "", "subject prefix used by the authority")
	flags.Duration("timeout", 0, "how long to wait for the authority")
	_ = v.BindPFlag(keyNatsURL, flags.Lookup("nats-url"))
	_ = v.BindPFlag(keyParticipant, flags.Lookup("participant"))
	_ = v.BindPFlag(keySubjectPrefix, flags.Lookup("subject-prefix"))
	_ = v.BindPFlag(keyTimeout, flags.Lookup("timeout"))

	root.AddCommand(
		newRequestCommand(v),
		newReleaseCommand(v),
		newHoldsCommand(v),
		newGuardCommand(v),
		newWatchCommand(v),
		newMutateCommand(v),
		newCreateCommand(v),
	)
	return root
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		NatsURL:       v.GetString(keyNatsURL),
		Participant:   ownership.ParticipantId(v.GetString(keyParticipant)),
		SubjectPrefix: v.GetString(keySubjectPrefix),
		Timeout:       v.GetDuration(keyTimeout),
	}
	if s.NatsURL == "" {
		s.NatsURL = nats.DefaultURL
	}
	if s.Timeout <= 0 {
		s.Timeout = 5 * time.Second
	}
	return s, nil
}

func (s settings) requireParticipant() error {
	if s.Participant == "" {
		return fmt.Errorf("participant is required (--participant or SIMLOCK_PARTICIPANT)")
	}
	return nil
}

// dial connects to the bus and returns a transport bound to the connection.
func (s settings) dial() (*nats.Conn, *messaging.Transport, error) {
	// Participant connections carry the participant's name so the authority
	// notices when the link drops.
	name := "simlockctl"
	if s.Participant != "" {
		name = messaging.ConnectionName(s.Participant)
	}

	conn, err := nats.Connect(s.NatsURL, nats.Name(name), nats.Timeout(s.Timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", s.NatsURL, err)
	}
	return conn, messaging.NewTransport(conn, messaging.WithSubjectPrefix(s.SubjectPrefix)), nil
}
