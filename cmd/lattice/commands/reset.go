package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendermint/lattice/config"
)

// MakeResetCommand constructs a command that removes the ledger database.
// The next start replays genesis.
func MakeResetCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Removes all accounts, receivables, transactions and votes stored by the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ResetState(cmd, conf.DBDir())
		},
	}
}

// ResetState removes the database directory and recreates it empty.
func ResetState(cmd *cobra.Command, dbDir string) error {
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to remove", "path", dbDir)
		return nil
	}
	if err := os.RemoveAll(dbDir); err != nil {
		return fmt.Errorf("removing %s: %w", dbDir, err)
	}
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "removed ledger data", "path", dbDir)
	return nil
}
