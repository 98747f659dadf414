package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shizukutanaka/mate/internal/logging"
	"github.com/shizukutanaka/mate/internal/overlay"
	"github.com/shizukutanaka/mate/internal/protocol"
)

// sendCmd delivers one message through a running overlay
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to a node",
	Long: `Start a short-lived node on an ephemeral port, join the overlay through
--peer and deliver --message to the node identified by --to.

Examples:
  mate send --peer 10.0.0.5:2015 --to 6ba7b810-9dad-11d1-80b4-00c04fd430c8 --message "I'm here!"`,
	Args: cobra.NoArgs,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("peer", "", "host:port of a node already in the overlay")
	sendCmd.Flags().String("to", "", "identifier of the recipient")
	sendCmd.Flags().String("message", "", "payload to deliver")
	sendCmd.Flags().Duration("timeout", 30*time.Second, "overall deadline")
	_ = sendCmd.MarkFlagRequired("peer")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("message")
}

func runSend(cmd *cobra.Command, args []string) error {
	peer, _ := cmd.Flags().GetString("peer")
	to, _ := cmd.Flags().GetString("to")
	message, _ := cmd.Flags().GetString("message")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	peerAddr, err := protocol.ParseAddress(peer)
	if err != nil {
		return fmt.Errorf("invalid --peer: %w", err)
	}
	target, err := overlay.ParseNodeID(to)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	if message == "" {
		return fmt.Errorf("--message must not be empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Node.NodeID = ""
	cfg.Node.NetworkPort = 0
	cfg.Metrics.Enabled = false

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	node, err := overlay.NewNode(logging.WithComponent(logger, "overlay"), cfg.Node)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	if err := node.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	defer node.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	peerID, err := node.DirectConnect(ctx, peerAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", peerAddr, err)
	}
	logging.WithPeer(logger, peerID.String(), peerAddr.String()).Debug("Joined overlay")

	start := time.Now()
	if err := node.Send(ctx, target, []byte(message)); err != nil {
		logging.LogIf(logger, err, "Send failed", zap.Stringer("to", target))
		return fmt.Errorf("failed to deliver message to %s: %w", target, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "delivered to %s in %s\n", target, time.Since(start).Round(time.Millisecond))
	return nil
}
