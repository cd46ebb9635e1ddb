package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kitemesh/kite/pkg/bridge"
	"github.com/kitemesh/kite/pkg/config"
	"github.com/kitemesh/kite/pkg/node"
	"github.com/kitemesh/kite/pkg/observability/logging"
	"github.com/kitemesh/kite/pkg/rpc"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kite-bridge",
		Short: "Stream kite topics to a visualization frontend over websocket",
		Run:   runBridge,
	}
	rootCmd.Flags().String("addr", config.DefaultBridgeAddr, "Websocket listen address")
	rootCmd.Flags().String("coordinator", rpc.DefaultAddr, "Coordinator RPC address")
	rootCmd.Flags().Duration("poll", time.Second, "Topic discovery interval")
	rootCmd.Flags().Bool("debug", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("failed to execute command: %q", err)
	}
}

func runBridge(cmd *cobra.Command, _ []string) {
	addr, _ := cmd.Flags().GetString("addr")
	coordAddr, _ := cmd.Flags().GetString("coordinator")
	poll, _ := cmd.Flags().GetDuration("poll")
	debug, _ := cmd.Flags().GetBool("debug")

	logging.Init(debug)
	defer zap.S().Sync() //nolint:errcheck
	logger := zap.S()

	n, err := node.New(node.Config{Name: "kite_bridge", CoordinatorAddr: coordAddr})
	if err != nil {
		logger.Fatal(err)
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(bridge.Config{Address: addr, PollInterval: poll}, n)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal(err)
	}
}
