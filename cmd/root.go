package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GNARcollectiveDAO/audius-protocol/cmd/serve"
)

const Version = "0.1.0"

var (
	RootCmd = &cobra.Command{
		Use:   "creatornode",
		Short: "Audius creator node",
		Long: fmt.Sprintf(`creatornode (v%s)

One member of a user's content replica set: accepts writes as a primary,
replicates as a secondary, and runs the Snapback state machine that keeps
replica sets converged and self-heals around unhealthy peers.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of creatornode",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("creatornode v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to RootCmd and runs it. Called once from
// main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
