package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HTMLRenderer writes a self-contained page with one echarts line chart per
// panel, laid out two per row.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(w io.Writer, f *Figure) error {
	page := components.NewPage()
	page.PageTitle = f.Title
	page.SetLayout(components.PageFlexLayout)

	for i := range f.Panels {
		page.AddCharts(panelChart(f, &f.Panels[i]))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("while rendering html: %w", err)
	}
	return nil
}

func panelChart(f *Figure, p *Panel) *charts.Line {
	showLegend := false
	for _, s := range p.Series {
		showLegend = showLegend || s.ShowLegend
	}

	yAxis := opts.YAxis{Type: "value", Name: p.YAxisTitle}
	if p.YFromZero {
		yAxis.Min = 0
	}

	// Hover keyed on x maps to an axis-triggered tooltip.
	trigger := "item"
	if f.HoverMode == "x" {
		trigger = "axis"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", f.Width/2),
			Height: fmt.Sprintf("%dpx", f.Height/2),
		}),
		charts.WithTitleOpts(opts.Title{Title: p.Title}),
		charts.WithLegendOpts(opts.Legend{
			Show:   opts.Bool(showLegend),
			Orient: f.LegendOrientation,
			Bottom: "0",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: trigger}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value"}),
		charts.WithYAxisOpts(yAxis),
	)

	for _, s := range p.Series {
		data := make([]opts.LineData, len(s.Points))
		for i, pt := range s.Points {
			data[i] = opts.LineData{Value: []float64{pt.X, pt.Y}}
		}
		c := HexColor(s.Color)
		line.AddSeries(s.Name, data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: c}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: c}),
		)
	}

	return line
}
