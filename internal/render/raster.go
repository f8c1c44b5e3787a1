package render

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/couchcryptid/cap-alert-service/internal/domain"
	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
)

// Style holds the colours of each layer.
type Style struct {
	Background    color.Color
	BasemapFill   color.Color
	BasemapStroke color.Color
	AreaFill      color.Color
	AreaStroke    color.Color
	LineWidth     float64
}

// DefaultStyle is a light basemap under translucent red alert areas.
func DefaultStyle() Style {
	return Style{
		Background:    color.NRGBA{R: 0xf4, G: 0xf6, B: 0xf8, A: 0xff},
		BasemapFill:   color.NRGBA{R: 0xdc, G: 0xe3, B: 0xe8, A: 0xff},
		BasemapStroke: color.NRGBA{R: 0x8a, G: 0x99, B: 0xa6, A: 0xff},
		AreaFill:      color.NRGBA{R: 0xe0, G: 0x3c, B: 0x31, A: 0x99},
		AreaStroke:    color.NRGBA{R: 0xa3, G: 0x1f, B: 0x16, A: 0xff},
		LineWidth:     1.5,
	}
}

// Fit returns the scale (pixels per degree) and pixel size that fit bounds
// inside maxW×maxH while keeping the aspect ratio.
func Fit(bounds orb.Bound, maxW, maxH int) (scale float64, width, height int, err error) {
	if maxW <= 0 || maxH <= 0 {
		return 0, 0, 0, &domain.GeometryError{Op: "fit", Err: domain.ErrEmptyImage}
	}
	dx, dy := bounds.Max[0]-bounds.Min[0], bounds.Max[1]-bounds.Min[1]
	if dx <= 0 || dy <= 0 {
		return 0, 0, 0, &domain.GeometryError{Op: "fit", Err: domain.ErrEmptyImage}
	}
	scale = math.Min(float64(maxW)/dx, float64(maxH)/dy)
	width = min(maxW, max(1, int(math.Round(dx*scale))))
	height = min(maxH, max(1, int(math.Round(dy*scale))))
	return scale, width, height, nil
}

// Rasterize draws scene on a transparent maxW×maxH canvas. The y axis is
// flipped and the bounds' top-left corner maps to the image origin.
func Rasterize(scene *Scene, maxW, maxH int, style Style) (image.Image, error) {
	scale, width, height, err := Fit(scene.Bounds, maxW, maxH)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(maxW, maxH)
	dc.SetFillRule(gg.FillRuleEvenOdd)
	dc.SetLineJoin(gg.LineJoinRound)
	dc.SetLineWidth(style.LineWidth)

	dc.SetColor(style.Background)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	project := func(p orb.Point) (float64, float64) {
		return (p[0] - scene.Bounds.Min[0]) * scale, (scene.Bounds.Max[1] - p[1]) * scale
	}
	drawLayer(dc, scene.Basemap, project, style.BasemapFill, style.BasemapStroke)
	drawLayer(dc, scene.Areas, project, style.AreaFill, style.AreaStroke)

	return dc.Image(), nil
}

func drawLayer(dc *gg.Context, mp orb.MultiPolygon, project func(orb.Point) (float64, float64), fill, stroke color.Color) {
	for _, poly := range mp {
		for _, ring := range poly {
			if len(ring) < 3 {
				continue
			}
			x, y := project(ring[0])
			dc.MoveTo(x, y)
			for _, p := range ring[1:] {
				x, y = project(p)
				dc.LineTo(x, y)
			}
			dc.ClosePath()
		}
		dc.SetColor(fill)
		dc.FillPreserve()
		dc.SetColor(stroke)
		dc.Stroke()
	}
}

// Trim crops fully transparent margins from img.
func Trim(img image.Image) (image.Image, error) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X, b.Min.Y
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a == 0 {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x+1)
			minY, maxY = min(minY, y), max(maxY, y+1)
		}
	}
	if minX >= maxX || minY >= maxY {
		return nil, &domain.GeometryError{Op: "trim", Err: domain.ErrEmptyImage}
	}

	rect := image.Rect(minX, minY, maxX, maxY)
	out := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out, nil
}

// Render rasterizes scene, trims it and encodes it as PNG.
func Render(scene *Scene, maxW, maxH int, style Style) ([]byte, error) {
	img, err := Rasterize(scene, maxW, maxH, style)
	if err != nil {
		return nil, err
	}
	img, err = Trim(img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, &domain.RenderError{Err: err}
	}
	return buf.Bytes(), nil
}
