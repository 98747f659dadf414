package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shizukutanaka/mate/internal/overlay"
)

// idCmd prints a fresh node identifier, suitable for node.node_id
var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Generate a node identifier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), overlay.NewNodeID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(idCmd)
}
