package commands

import (
	"os"
	"os/signal"
	"syscall"

	"docdetect/internal/protocol"
	"docdetect/internal/service/streamer"

	"github.com/spf13/cobra"
)

var (
	streamFPS      int
	streamCount    int
	streamRaw      bool
	streamQuality  int
	streamAddr     string
	streamMaxWidth int
)

var streamCmd = &cobra.Command{
	Use:   "stream PATH",
	Short: "Replay still images to a running service",
	Long: `Send an image, or every image in a directory, to the service's receive
port at a fixed frame rate. Images are fitted into 1280x720 and re-encoded
as JPEG unless --raw is given.`,
	Example: `  # Loop one image at 30 fps over TCP
  docdetect stream page.jpg

  # A directory over UDP, 10 frames per second, 100 frames
  docdetect stream --transport udp --fps 10 --count 100 ./frames`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

func init() {
	flags := streamCmd.Flags()
	flags.IntVar(&streamFPS, "fps", streamer.DefaultFPS, "frames per second")
	flags.IntVar(&streamCount, "count", 0, "stop after this many frames (0 streams until interrupted)")
	flags.BoolVar(&streamRaw, "raw", false, "send the file bytes without re-encoding")
	flags.IntVar(&streamQuality, "quality", streamer.DefaultQuality, "JPEG quality")
	flags.IntVar(&streamMaxWidth, "max-width", streamer.DefaultMaxWidth, "fit frames into this width (height keeps 16:9)")
	flags.StringVar(&streamAddr, "addr", "", "service receive address (default per transport)")

	rootCmd.AddCommand(streamCmd)
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := consoleLogger(cfg)

	addr := streamAddr
	if addr == "" {
		addr = cfg.ReceiveAddr
	}

	maxHeight := streamMaxWidth * streamer.DefaultMaxHeight / streamer.DefaultMaxWidth
	frames, err := streamer.LoadFrames(args[0], streamMaxWidth, maxHeight, streamQuality, streamRaw)
	if err != nil {
		return err
	}
	for i, frame := range frames {
		if uint64(len(frame)) > cfg.MaxFrameSize {
			log.Warning("Frame %d is %d bytes, above the service limit of %d", i, len(frame), cfg.MaxFrameSize)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := streamer.Dial(ctx, cfg.Transport, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	log.Info("Streaming %d image(s) to %s over %s at %d fps (fragment size %d for udp)",
		len(frames), addr, cfg.Transport, streamFPS, protocol.DefaultFragmentSize)

	sent, err := streamer.New(client, frames, streamFPS, streamCount, log).Run(ctx)
	log.Info("Stopped after %d frames", sent)
	return err
}
