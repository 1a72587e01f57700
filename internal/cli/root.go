// Package cli implements chatctl, the command line front end of the
// mawneychat daemon.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

const defaultAddr = "127.0.0.1:7780"

type options struct {
	addr   string
	output string
	out    io.Writer
}

// NewRootCmd builds the command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{out: out}
	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Drive a mawneychat daemon and inspect its local store",
		Long: `chatctl talks to the local command API of a running mawneychat daemon
to list chats, send messages and manage conversations. The inspect command
reads a stopped daemon's store directly.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case formatTable, formatJSON, formatYAML:
				return nil
			}
			return fmt.Errorf("unknown output format %q (table, json, yaml)", opts.output)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(out)

	addr := os.Getenv("MAWNEYCHAT_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", addr, "daemon command API address (host:port)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", formatTable, "output format: table, json or yaml")

	root.AddCommand(
		newLoginCmd(opts),
		newUsersCmd(opts),
		newChatsCmd(opts),
		newMessagesCmd(opts),
		newSendCmd(opts),
		newReadCmd(opts),
		newDirectCmd(opts),
		newGroupCmd(opts),
		newLeaveCmd(opts),
		newDeleteCmd(opts),
		newUnreadCmd(opts),
		newPollCmd(opts),
		newOutboxCmd(opts),
		newInspectCmd(opts),
	)
	return root
}

// Execute runs chatctl with os.Args.
func Execute() {
	if err := NewRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
