package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"docdetect/internal/config"
	"docdetect/internal/handler"
	"docdetect/internal/protocol"
	"docdetect/internal/service/storage"

	"github.com/spf13/cobra"
)

var (
	receiveDir  string
	receiveAddr string
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Collect the crops sent by the service",
	Long: `Listen on the service's send address and write every crop that arrives to
a directory. With udp a crop whose header datagrams were lost is dropped.`,
	Example: `  # Collect crops from a TCP service
  docdetect receive --dir ./received

  # UDP on a custom port
  docdetect receive --transport udp --addr 0.0.0.0:9006`,
	RunE: runReceive,
}

func init() {
	receiveCmd.Flags().StringVar(&receiveDir, "dir", "received", "directory for received crops")
	receiveCmd.Flags().StringVar(&receiveAddr, "addr", "", "listen address (default per transport)")

	rootCmd.AddCommand(receiveCmd)
}

type captureListener interface {
	Listen() error
	Serve(ctx context.Context) error
	Close() error
}

func runReceive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := consoleLogger(cfg)

	addr := receiveAddr
	if addr == "" {
		addr = cfg.SendAddr
	}

	writer := storage.NewReceivedWriter(receiveDir, log)

	var listener captureListener
	switch cfg.Transport {
	case config.TransportUDP:
		listener = handler.NewCaptureUDPHandler(addr, cfg.PollInterval, cfg.MaxFrameSize, writer.Handle, log)
	default:
		listener = handler.NewCaptureTCPHandler(addr, cfg.PollInterval, cfg.MaxFrameSize, writer.Handle, log)
	}
	if err := listener.Listen(); err != nil {
		return err
	}
	defer listener.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Writing received crops to %s (max %d bytes each)", receiveDir, protocol.DefaultMaxFrameSize)
	err = listener.Serve(ctx)
	log.Info("Received %d crops", writer.Count())
	return err
}
