package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendermint/lattice/config"
	"github.com/tendermint/lattice/types"
)

// MakeInitFilesCommand returns the command that initializes a fresh home
// directory: config file, node key and a genesis giving the whole initial
// supply to the node key.
func MakeInitFilesCommand(conf *config.Config) *cobra.Command {
	var (
		chainID string
		balance string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initializes a lattice home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			supply, err := types.ParseAmount(balance)
			if err != nil {
				return fmt.Errorf("invalid --balance: %w", err)
			}
			return initFilesWithConfig(cmd, conf, chainID, supply)
		},
	}

	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id of the new ledger (default: random)")
	cmd.Flags().StringVar(&balance, "balance", "1000000000", "balance of the genesis account")
	cmd.Flags().Bool("voter", conf.Voter, "cast votes with the node key")
	return cmd
}

func initFilesWithConfig(cmd *cobra.Command, conf *config.Config, chainID string, supply types.Amount) error {
	out := cmd.OutOrStdout()

	nodeKey, err := types.LoadOrGenNodeKey(conf.NodeKeyFile())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "node key", "path", conf.NodeKeyFile(), "public_key", nodeKey.PublicKey())

	genFile := conf.GenesisFile()
	if _, err := os.Stat(genFile); err == nil {
		fmt.Fprintln(out, "found genesis file", "path", genFile)
	} else {
		if chainID == "" {
			chainID = "lattice-" + types.GenPrivateKey().PublicKey().ShortString()
		}
		genDoc := types.GenesisDoc{
			ChainID:     chainID,
			GenesisTime: time.Now().UTC(),
			Accounts: []types.GenesisAccount{{
				PublicKey:      nodeKey.PublicKey(),
				Balance:        supply,
				Representative: nodeKey.PublicKey(),
			}},
		}
		if err := genDoc.ValidateAndComplete(); err != nil {
			return err
		}
		if err := genDoc.SaveAs(genFile); err != nil {
			return err
		}
		fmt.Fprintln(out, "generated genesis file", "path", genFile)
	}

	cfgFile := config.ConfigFile(conf.RootDir)
	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Fprintln(out, "found config file", "path", cfgFile)
		return nil
	}
	if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
		return err
	}
	fmt.Fprintln(out, "generated config file", "path", cfgFile)
	return nil
}
