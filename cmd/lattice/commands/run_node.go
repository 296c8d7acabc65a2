package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/node"
)

// AddNodeFlags exposes some common configuration options on the command-line.
// Flag names match the config keys so viper picks them up.
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().Bool("voter", conf.Voter, "cast votes with the node key")
	cmd.Flags().String("log_format", conf.LogFormat, "log format (plain | json)")

	// db flags
	cmd.Flags().String("db_backend", conf.DBBackend, "database backend: goleveldb | memdb")
	cmd.Flags().String("db_dir", conf.DBPath, "database directory")

	// election flags
	cmd.Flags().String("election.voting_weight_mode", conf.Election.VotingWeightMode,
		"weight gating vote casting: fixed | confirmation")
	cmd.Flags().Duration("election.timeout", conf.Election.Timeout, "how long an election may run")

	// instrumentation flags
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve prometheus metrics")
	cmd.Flags().String("instrumentation.prometheus_listen_addr", conf.Instrumentation.PrometheusListenAddr,
		"address of the prometheus endpoint")
}

// NewRunNodeCmd returns the command that starts a node and runs it until
// the process is interrupted.
func NewRunNodeCmd(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the lattice node",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(conf)
			if err != nil {
				return err
			}

			n, err := node.NewDefault(cmd.Context(), conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			// Run returns once the context is canceled (SIGTERM or CTRL-C).
			return n.Run(cmd.Context())
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
