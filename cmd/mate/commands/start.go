package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shizukutanaka/mate/internal/config"
	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/logging"
	"github.com/shizukutanaka/mate/internal/monitoring"
	"github.com/shizukutanaka/mate/internal/overlay"
	"github.com/shizukutanaka/mate/internal/protocol"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an overlay node",
	Long: `Start an overlay node with the specified configuration.

Examples:
  # Start with default config
  mate start

  # Start with a config file and bootstrap peers
  mate start --config mate.yaml --bootstrap 10.0.0.5:2015

  # Start on a specific port
  mate start --port 4000`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().Int("port", -1, "UDP port to listen on (overrides node.network_port)")
	startCmd.Flags().StringSlice("bootstrap", nil, "host:port of nodes to connect to at startup")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	port, _ := cmd.Flags().GetInt("port")
	if port >= 0 {
		cfg.Node.NetworkPort = port
	}
	if extra, _ := cmd.Flags().GetStringSlice("bootstrap"); len(extra) > 0 {
		cfg.Bootstrap = append(cfg.Bootstrap, extra...)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	nodeLogger := logging.WithComponent(logger, "overlay")
	node, err := overlay.NewNode(nodeLogger, cfg.Node, overlay.WithEvents(overlay.Events{
		OnMessage: func(from overlay.ContactInfo, payload []byte) {
			logging.WithPeer(nodeLogger, from.ID.String(), from.Address.String()).Info("Message received",
				zap.ByteString("payload", payload),
				zap.String("size", humanize.Bytes(uint64(len(payload)))),
			)
		},
		OnNetError: func(err error) {
			mateerrors.Log(nodeLogger, err, "Network error")
		},
		OnDataError: func(err error) {
			mateerrors.Log(nodeLogger, err, "Dropped malformed datagram")
		},
	}))
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	if err := node.Start(); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	logger.Info("mate started",
		zap.String("version", Version),
		zap.Stringer("node_id", node.ID()),
		zap.Stringer("address", node.Addr()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := monitoring.NewServer(logging.WithComponent(logger, "monitoring"), cfg.Metrics, node, node.Registry())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	for _, addr := range cfg.Bootstrap {
		addr := addr
		g.Go(func() error {
			bootstrap(gctx, logger, node, addr, cfg)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return node.Close()
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("mate stopped")
	return nil
}

// bootstrap connects to addr, retrying with exponential backoff until it
// succeeds, the bootstrap timeout elapses or ctx is cancelled. Failures are
// logged and never stop the node.
func bootstrap(ctx context.Context, logger *zap.Logger, node *overlay.Node, addr string, cfg *config.Config) {
	peerLogger := logging.WithComponent(logger, "bootstrap").With(zap.String("address", addr))

	target, err := protocol.ParseAddress(addr)
	if err != nil {
		logging.LogIf(peerLogger, err, "Invalid bootstrap address")
		return
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.BootstrapTimeout
	if cfg.Node.ConnectTimeout > 0 {
		b.InitialInterval = cfg.Node.ConnectTimeout
	}

	attempts := 0
	var id overlay.NodeID
	err = backoff.Retry(backoff.Operation(func() error {
		attempts++
		var connectErr error
		id, connectErr = node.DirectConnect(ctx, target)
		if mateerrors.Is(connectErr, mateerrors.ErrClosed) {
			return backoff.Permanent(connectErr)
		}
		if connectErr != nil {
			peerLogger.Debug("Bootstrap attempt failed", zap.Int("attempt", attempts), zap.Error(connectErr))
		}
		return connectErr
	}), backoff.WithContext(b, ctx))
	if err != nil {
		if ctx.Err() == nil {
			logging.LogIf(peerLogger, err, "Bootstrap failed", zap.Int("attempts", attempts))
		}
		return
	}

	logging.WithPeer(peerLogger, id.String(), target.String()).Info("Bootstrapped",
		zap.Int("attempts", attempts),
	)
}
