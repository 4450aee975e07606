// Package streamer is the capture-client side of the receive protocols. It
// replays still images to a running service at a fixed frame rate.
package streamer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docdetect/internal/config"
	"docdetect/internal/logger"
	"docdetect/internal/protocol"

	"github.com/disintegration/imaging"
)

const (
	DefaultFPS           = 30
	DefaultQuality       = 80
	DefaultMaxWidth      = 1280
	DefaultMaxHeight     = 720
	DefaultFragmentDelay = 100 * time.Microsecond
	statusEvery          = 30
)

// ErrNoImages is returned when the source path holds no readable image.
var ErrNoImages = errors.New("no images found")

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true}

// Transport delivers one encoded frame.
type Transport interface {
	Send(payload []byte) error
	Close() error
}

// LoadFrames reads path (a file or a directory of images) and returns the
// frames as JPEG, fitted into maxWidth x maxHeight. With raw set the file bytes
// are sent untouched.
func LoadFrames(path string, maxWidth, maxHeight, quality int, raw bool) ([][]byte, error) {
	files, err := imageFiles(path)
	if err != nil {
		return nil, err
	}

	frames := make([][]byte, 0, len(files))
	for _, file := range files {
		var payload []byte
		if raw {
			payload, err = os.ReadFile(file)
		} else {
			payload, err = encodeFrame(file, maxWidth, maxHeight, quality)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		frames = append(frames, payload)
	}
	return frames, nil
}

func imageFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, path)
	}
	sort.Strings(files)
	return files, nil
}

func encodeFrame(file string, maxWidth, maxHeight, quality int) ([]byte, error) {
	img, err := imaging.Open(file, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	if maxWidth > 0 && maxHeight > 0 {
		b := img.Bounds()
		if b.Dx() > maxWidth || b.Dy() > maxHeight {
			img = imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TCPClient writes length-prefixed frames over one persistent connection.
type TCPClient struct {
	conn net.Conn
}

func DialTCP(ctx context.Context, addr string) (*TCPClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return &TCPClient{conn: conn}, nil
}

func (c *TCPClient) Send(payload []byte) error {
	return protocol.WriteFrame(c.conn, payload)
}

func (c *TCPClient) Close() error {
	return c.conn.Close()
}

// UDPClient fragments each frame into datagrams tagged with an increasing frame id.
type UDPClient struct {
	conn         net.Conn
	fragmentSize int
	delay        time.Duration
	frameID      uint32
}

func DialUDP(addr string, fragmentSize int, delay time.Duration) (*UDPClient, error) {
	if fragmentSize <= 0 || fragmentSize > protocol.MaxDatagramSize-protocol.FragmentHeaderSize {
		fragmentSize = protocol.DefaultFragmentSize
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket to %s: %w", addr, err)
	}
	return &UDPClient{conn: conn, fragmentSize: fragmentSize, delay: delay}, nil
}

func (c *UDPClient) Send(payload []byte) error {
	for _, fragment := range protocol.SplitFrame(c.frameID, payload, c.fragmentSize) {
		if _, err := c.conn.Write(fragment.Marshal()); err != nil {
			return err
		}
		if c.delay > 0 {
			time.Sleep(c.delay)
		}
	}
	c.frameID++
	return nil
}

func (c *UDPClient) Close() error {
	return c.conn.Close()
}

// Dial opens the client matching the transport.
func Dial(ctx context.Context, transport, addr string) (Transport, error) {
	switch transport {
	case config.TransportTCP:
		return DialTCP(ctx, addr)
	case config.TransportUDP:
		return DialUDP(addr, protocol.DefaultFragmentSize, DefaultFragmentDelay)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}

// Streamer cycles through frames at a fixed rate.
type Streamer struct {
	transport Transport
	frames    [][]byte
	interval  time.Duration
	limit     int
	logger    *logger.Logger
}

// New creates a streamer sending at fps frames per second. A positive limit
// stops after that many frames; zero streams until ctx is cancelled.
func New(transport Transport, frames [][]byte, fps, limit int, logger *logger.Logger) *Streamer {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Streamer{
		transport: transport,
		frames:    frames,
		interval:  time.Second / time.Duration(fps),
		limit:     limit,
		logger:    logger,
	}
}

// Run sends frames until ctx is done, the limit is reached or a send fails.
// It returns the number of frames sent.
func (s *Streamer) Run(ctx context.Context) (int, error) {
	if len(s.frames) == 0 {
		return 0, ErrNoImages
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	sent := 0
	for {
		if err := s.transport.Send(s.frames[sent%len(s.frames)]); err != nil {
			return sent, fmt.Errorf("failed to send frame %d: %w", sent, err)
		}
		sent++
		if sent%statusEvery == 0 {
			s.logger.Info("Sent %d frames", sent)
		}
		if s.limit > 0 && sent >= s.limit {
			return sent, nil
		}

		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}
	}
}
