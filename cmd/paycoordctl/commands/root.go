package commands

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
	client    *Client
)

func Execute() error {
	return newRootCmd(os.Stdout).Execute()
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "paycoordctl",
		Short:        "Drive the purchase coordinator over HTTP",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client = NewClient(serverURL)
			client.HTTP.Timeout = timeout
			return nil
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&serverURL, "server", envOr("PAYCOORD_SERVER", "http://127.0.0.1:8888"), "paycoord base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "request timeout; start waits for the user")

	root.AddCommand(statusCmd(), setupCmd(), startCmd(), finishCmd(), resetCmd(), unfinishedCmd(), catalogCmd(), eventsCmd())
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
