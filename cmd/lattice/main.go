package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tendermint/lattice/cmd/lattice/commands"
	"github.com/tendermint/lattice/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf := config.DefaultConfig()

	rcmd := commands.RootCommand(conf)
	rcmd.AddCommand(
		commands.MakeInitFilesCommand(conf),
		commands.NewRunNodeCmd(conf),
		commands.MakeResetCommand(conf),
		commands.VersionCmd,
	)

	if err := rcmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
