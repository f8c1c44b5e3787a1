package render

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/couchcryptid/cap-alert-service/internal/observability"
	"github.com/paulmach/orb"
)

// Format selects what an Output carries.
type Format string

const (
	FormatText Format = "text"
	FormatMap  Format = "map"
	FormatJSON Format = "json"
)

// ParseFormat accepts text, map, text+map and json, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return FormatText, nil
	case "map", "text+map":
		return FormatMap, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format: %q", s)
	}
}

// Output is what gets handed to a publisher.
type Output struct {
	RunID    string
	Message  string
	Image    []byte // PNG, nil unless Format is FormatMap
	Format   Format
	AlertIDs []string
}

// Options configures a Compositor.
type Options struct {
	Boundaries orb.MultiPolygon
	Outlines   orb.MultiPolygon
	MaxWidth   int
	MaxHeight  int
	Location   *time.Location
	Style      Style
}

// Compositor produces outputs for alert sets against fixed boundary and
// outline geometry. The geometry is shared read-only.
type Compositor struct {
	opts    Options
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCompositor creates a Compositor. A nil Location means UTC and a zero
// Style means DefaultStyle.
func NewCompositor(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Compositor {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Style == (Style{}) {
		opts.Style = DefaultStyle()
	}
	return &Compositor{opts: opts, metrics: metrics, logger: logger}
}

// Output renders alerts in format.
func (c *Compositor) Output(alerts domain.AlertSet, format Format) (Output, error) {
	out := Output{Format: format, AlertIDs: alerts.GUIDs()}
	switch format {
	case FormatText:
		out.Message = Text(alerts, c.opts.Location)
	case FormatMap:
		img, err := c.Map(alerts)
		if err != nil {
			return Output{}, err
		}
		out.Message = Text(alerts, c.opts.Location)
		out.Image = img
	case FormatJSON:
		data, err := json.MarshalIndent(alerts.Slice(), "", "  ")
		if err != nil {
			return Output{}, &domain.RenderError{Err: err}
		}
		out.Message = string(data)
	default:
		return Output{}, fmt.Errorf("unknown output format: %q", format)
	}
	return out, nil
}

// Map composes and rasterizes the alert map as PNG.
func (c *Compositor) Map(alerts domain.AlertSet) ([]byte, error) {
	start := time.Now()
	defer func() { c.metrics.RenderDuration.Observe(time.Since(start).Seconds()) }()

	scene, err := Compose(alerts, c.opts.Boundaries, c.opts.Outlines)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("composed scene",
		"bounds", scene.Bounds,
		"areas", len(scene.Areas),
		"basemap", len(scene.Basemap),
		"cropped", scene.Cropped,
	)
	return Render(scene, c.opts.MaxWidth, c.opts.MaxHeight, c.opts.Style)
}
