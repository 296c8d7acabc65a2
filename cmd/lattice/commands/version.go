package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/lattice/version"
)

var verbose bool

// VersionCmd prints the node version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		if verbose {
			values, _ := json.MarshalIndent(struct {
				Lattice        string `json:"lattice"`
				VoteProtocol   uint64 `json:"vote_protocol"`
				LedgerProtocol uint64 `json:"ledger_protocol"`
			}{
				Lattice:        version.Version,
				VoteProtocol:   uint64(version.VoteProtocol),
				LedgerProtocol: uint64(version.LedgerProtocol),
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(values))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		}
	},
}

func init() {
	VersionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol versions")
}
