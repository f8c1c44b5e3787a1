// Package stdout publishes run output to a terminal or log pipe.
package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/cap-alert-service/internal/observability"
	"github.com/couchcryptid/cap-alert-service/internal/render"
)

// Publisher writes the message to w and the map image, if any, to imagePath.
type Publisher struct {
	w         io.Writer
	imagePath string
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewPublisher creates a Publisher. An empty imagePath discards images.
func NewPublisher(w io.Writer, imagePath string, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{w: w, imagePath: imagePath, metrics: metrics, logger: logger}
}

func (p *Publisher) Publish(_ context.Context, out render.Output) error {
	if _, err := fmt.Fprintln(p.w, out.Message); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if len(out.Image) > 0 {
		if p.imagePath == "" {
			p.logger.Warn("map rendered but OUTPUT_IMAGE is not set, discarding", "run_id", out.RunID)
		} else if err := writeImage(p.imagePath, out.Image); err != nil {
			return err
		} else {
			p.logger.Info("wrote map image", "path", p.imagePath, "bytes", len(out.Image))
		}
	}
	p.metrics.MessagesPublished.WithLabelValues("stdout").Inc()
	return nil
}

// writeImage replaces path atomically so readers never see a partial PNG.
func writeImage(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".map-*.png")
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}
