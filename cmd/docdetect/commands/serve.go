package commands

import (
	"context"
	"errors"

	"docdetect/internal/app"
	"docdetect/internal/logger"
	"docdetect/internal/service/pipeline"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the detection service",
	Long: `Receive frames from capture clients, run object detection and forward the
sharpest crop of every detected region to the downstream receiver.

Ports default to 48003 -> 48004 for tcp and 48005 -> 48006 for udp.`,
	Example: `  # TCP service, saving every capture
  docdetect serve --save

  # UDP service with the live preview on :8080
  docdetect serve --transport udp --show

  # Only documents, keeping up to 4 frames queued
  DETECT_LABELS=book docdetect serve --queue-size 4`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.Bool("save", false, "save captured crops as PNG files")
	flags.Bool("show", false, "publish annotated frames to preview viewers")
	flags.Int("queue-size", 0, "frames kept while the detector is busy (default 1)")
	flags.Duration("min-interval", 0, "capture at least this often per region (default 1s tcp, 10s udp)")
	flags.String("receive-addr", "", "address capture clients connect to")
	flags.String("send-addr", "", "address of the downstream receiver")
	flags.String("preview-addr", "", "HTTP address of the preview and status API (default :8080)")

	viper.BindPFlag("save", flags.Lookup("save"))
	viper.BindPFlag("show", flags.Lookup("show"))
	viper.BindPFlag("queue_size", flags.Lookup("queue-size"))
	viper.BindPFlag("min_capture_interval", flags.Lookup("min-interval"))
	viper.BindPFlag("receive_addr", flags.Lookup("receive-addr"))
	viper.BindPFlag("send_addr", flags.Lookup("send-addr"))
	viper.BindPFlag("preview_addr", flags.Lookup("preview-addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.NewLogger(cfg)
	log.Info("Loading detection model from %s", cfg.ModelPath)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return err
	}

	if err := application.Run(context.Background()); err != nil {
		if errors.Is(err, pipeline.ErrDetectorUnavailable) {
			log.Error("Cannot run without a detection model: %v", err)
		}
		return err
	}
	return nil
}
