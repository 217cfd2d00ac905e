package chart

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gonum.org/v1/plot/vg/vgpdf"
	"gonum.org/v1/plot/vg/vgsvg"
)

// ImageRenderer draws the figure as a static 2x2 grid of plots.
type ImageRenderer struct {
	// Format is one of "png", "svg" or "pdf".
	Format string
}

func (r ImageRenderer) Render(w io.Writer, f *Figure) error {
	width := vg.Length(f.Width) * vg.Inch / 96
	height := vg.Length(f.Height) * vg.Inch / 96

	var c interface {
		vg.CanvasSizer
		io.WriterTo
	}
	switch r.Format {
	case "png":
		c = vgimg.PngCanvas{Canvas: vgimg.New(width, height)}
	case "svg":
		c = vgsvg.New(width, height)
	case "pdf":
		c = vgpdf.New(width, height)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.Format)
	}

	plots := make([][]*plot.Plot, 2)
	for i := range plots {
		plots[i] = make([]*plot.Plot, 2)
	}
	for i := range f.Panels {
		p, err := panelPlot(f, &f.Panels[i])
		if err != nil {
			return err
		}
		plots[f.Panels[i].Row-1][f.Panels[i].Col-1] = p
	}

	tiles := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, draw.New(c))
	for j := range plots {
		for i := range plots[j] {
			plots[j][i].Draw(canvases[j][i])
		}
	}

	if _, err := c.WriteTo(w); err != nil {
		return fmt.Errorf("while writing %s: %w", r.Format, err)
	}
	return nil
}

func panelPlot(f *Figure, panel *Panel) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = panel.Title
	p.Y.Label.Text = panel.YAxisTitle
	p.Legend.Top = true

	for _, s := range panel.Series {
		line, points, err := plotter.NewLinePoints(s.Points)
		if err != nil {
			return nil, fmt.Errorf("while plotting %s/%s: %w", panel.Title, s.Name, err)
		}
		line.Color = s.Color
		points.Color = s.Color
		points.Shape = draw.CircleGlyph{}
		p.Add(line, points)
		if s.ShowLegend {
			p.Legend.Add(s.Name, line, points)
		}
	}

	if panel.YFromZero {
		// An all-zero or empty panel would otherwise be widened to -1..1.
		p.Y.Min = 0
		if p.Y.Max <= 0 {
			p.Y.Max = 1
		}
	}
	return p, nil
}
