// Package chart turns benchmark results into a four-panel chart of
// throughput and tail latency per server.
package chart

import (
	"image/color"

	"gonum.org/v1/plot/plotter"
)

// Metric extracts one plotted value from a row.
type Metric struct {
	Column string
	// Divisor converts the raw column value into display units.
	Divisor float64
	value   func(Row) float64
}

// Value returns the row's value in display units.
func (m Metric) Value(r Row) float64 {
	return m.value(r) / m.Divisor
}

// Panel is one cell of the 2x2 grid.
type Panel struct {
	Row, Col   int
	Title      string
	YAxisTitle string
	Metric     Metric
	YFromZero  bool
	Series     []Series
}

// Series is one line (with markers) for one server in one panel.
type Series struct {
	Name       string
	Color      color.RGBA
	ShowLegend bool
	Points     plotter.XYs
}

// Figure is the renderer-independent chart model.
type Figure struct {
	Title             string
	Width, Height     int
	LegendOrientation string
	HoverMode         string
	Panels            [4]Panel
}

const usPerMs = 1000

func panelLayout() [4]Panel {
	return [4]Panel{
		{
			Row: 1, Col: 1,
			Title:     "Requests per second",
			YFromZero: true,
			Metric:    Metric{Column: ColReqPS, Divisor: 1, value: func(r Row) float64 { return r.ReqPS }},
		},
		{
			Row: 1, Col: 2,
			Title:      "Latency: 90%ile",
			YAxisTitle: "milliseconds",
			YFromZero:  true,
			Metric:     Metric{Column: ColLat90, Divisor: usPerMs, value: func(r Row) float64 { return r.Lat90 }},
		},
		{
			Row: 2, Col: 1,
			Title:      "Latency: 99%ile",
			YAxisTitle: "milliseconds",
			YFromZero:  true,
			Metric:     Metric{Column: ColLat99, Divisor: usPerMs, value: func(r Row) float64 { return r.Lat99 }},
		},
		{
			Row: 2, Col: 2,
			Title:      "Latency: 99.9%ile",
			YAxisTitle: "milliseconds",
			YFromZero:  true,
			Metric:     Metric{Column: ColLat999, Divisor: usPerMs, value: func(r Row) float64 { return r.Lat999 }},
		},
	}
}

// Build lays out ds as a four-panel figure. The i-th server in sorted order
// gets cfg.Palette.At(i) in every panel, and only the first panel's series
// appear in the legend.
func Build(ds *Dataset, cfg Config) (*Figure, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &Figure{
		Title:             cfg.Title,
		Width:             cfg.Width,
		Height:            cfg.Height,
		LegendOrientation: cfg.LegendOrientation,
		HoverMode:         cfg.HoverMode,
		Panels:            panelLayout(),
	}

	for i, server := range ds.Servers() {
		rows := ds.Group(server)
		c := cfg.Palette.At(i)

		for p := range f.Panels {
			panel := &f.Panels[p]

			xys := make(plotter.XYs, len(rows))
			for j, row := range rows {
				xys[j].X = row.Size
				xys[j].Y = panel.Metric.Value(row)
			}
			panel.Series = append(panel.Series, Series{
				Name:       server,
				Color:      c,
				ShowLegend: p == 0,
				Points:     xys,
			})
		}
	}
	return f, nil
}

// SeriesCount returns the number of series across all panels.
func (f *Figure) SeriesCount() int {
	n := 0
	for _, p := range f.Panels {
		n += len(p.Series)
	}
	return n
}
