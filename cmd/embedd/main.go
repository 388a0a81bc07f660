// Package main serves the deterministic hash embedder over gRPC so that
// governors in other processes resolve payloads to identical vectors.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/auditor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/codec"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/config"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/logging"
)

var (
	configPath string
	listenAddr string
	dim        int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "embedd",
	Short: "Serve the hash embedder over gRPC",
	Long: `embedd exposes the Embed RPC backed by the deterministic hash embedder.
Point 'stp run --codec-addr' or codec.addr at it.

Examples:
  embedd --addr :50551
  STP_CODEC_LISTEN=0.0.0.0:7451 embedd`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (defaults to codec.listen)")
	rootCmd.Flags().IntVar(&dim, "dim", auditor.DefaultDim, "embedding dimension")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if dim <= 0 {
		return fmt.Errorf("dimension %d must be positive", dim)
	}
	addr := listenAddr
	if addr == "" {
		addr = cfg.Codec.Listen
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	codec.RegisterEmbedServiceServer(srv, codec.NewServer(&auditor.HashEmbedder{Dim: dim}, logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		srv.GracefulStop()
	}()

	logger.Info("embedd listening", zap.String("addr", lis.Addr().String()), zap.Int("dim", dim))
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
