package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mms",
		Short: "Meeting session coordinator",
		Long: `mms serves the meeting session API: it loads sessions from the record
store, runs the elapsed timer and attendance poller, relays the video
widget over a websocket, and commits end-of-meeting state.

Configuration is read from config/config.<MMS_CONFIG_ENV>.yaml (or --config)
with MMS_ prefixed environment overrides.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default config/config.<env>.yaml)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newDevTokenCommand())
	root.AddCommand(newTokenCommand())
	return root
}
