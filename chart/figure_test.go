package chart

import (
	"fmt"
	"image/color"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/plotter"
)

func buildTwoServers(t *testing.T) *Figure {
	t.Helper()
	ds, err := ReadCSV(strings.NewReader(twoServers))
	require.NoError(t, err)
	f, err := Build(ds, DefaultConfig())
	require.NoError(t, err)
	return f
}

func TestBuildTwoServers(t *testing.T) {
	f := buildTwoServers(t)
	palette := DefaultConfig().Palette

	want := []Series{
		{Name: "A", Color: palette[0], Points: plotter.XYs{{X: 1, Y: 1.0}, {X: 2, Y: 1.5}, {X: 4, Y: 2.0}}},
		{Name: "B", Color: palette[1], Points: plotter.XYs{{X: 1, Y: 1.2}, {X: 2, Y: 1.6}, {X: 4, Y: 2.1}}},
	}
	lat90 := f.Panels[1]
	require.Equal(t, "Latency: 90%ile", lat90.Title)
	if diff := cmp.Diff(want, lat90.Series, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("lat90 series mismatch (-want +got):\n%s", diff)
	}

	reqps := f.Panels[0]
	want = []Series{
		{Name: "A", Color: palette[0], ShowLegend: true, Points: plotter.XYs{{X: 1, Y: 100}, {X: 2, Y: 150}, {X: 4, Y: 180}}},
		{Name: "B", Color: palette[1], ShowLegend: true, Points: plotter.XYs{{X: 1, Y: 90}, {X: 2, Y: 140}, {X: 4, Y: 170}}},
	}
	if diff := cmp.Diff(want, reqps.Series); diff != "" {
		t.Errorf("reqps series mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPanelLayout(t *testing.T) {
	f := buildTwoServers(t)

	type cell struct {
		Row, Col   int
		Title      string
		YAxisTitle string
		Column     string
	}
	var got []cell
	for _, p := range f.Panels {
		got = append(got, cell{p.Row, p.Col, p.Title, p.YAxisTitle, p.Metric.Column})
		assert.True(t, p.YFromZero, p.Title)
	}
	want := []cell{
		{1, 1, "Requests per second", "", ColReqPS},
		{1, 2, "Latency: 90%ile", "milliseconds", ColLat90},
		{2, 1, "Latency: 99%ile", "milliseconds", ColLat99},
		{2, 2, "Latency: 99.9%ile", "milliseconds", ColLat999},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func manyServers(n int) *Dataset {
	ds := &Dataset{}
	for i := 0; i < n; i++ {
		for _, size := range []float64{4, 1, 2} {
			ds.Rows = append(ds.Rows, Row{
				Server: fmt.Sprintf("srv%02d", i),
				Size:   size,
				ReqPS:  size * 10,
				Lat90:  size * 500,
				Lat99:  size * 5000,
				Lat999: size * 50000,
			})
		}
	}
	return ds
}

func TestBuildInvariants(t *testing.T) {
	for _, n := range []int{0, 1, 3, 10, 13} {
		t.Run(fmt.Sprintf("%d servers", n), func(t *testing.T) {
			ds := manyServers(n)
			cfg := DefaultConfig()
			f, err := Build(ds, cfg)
			require.NoError(t, err)

			assert.Equal(t, 4*n, f.SeriesCount())

			for p, panel := range f.Panels {
				require.Len(t, panel.Series, n)
				for i, s := range panel.Series {
					// Same color as panel 1, cycling through the palette.
					assert.Equal(t, f.Panels[0].Series[i].Color, s.Color)
					assert.Equal(t, cfg.Palette[i%len(cfg.Palette)], s.Color)
					assert.Equal(t, p == 0, s.ShowLegend)
				}
			}
		})
	}
}

func TestBuildLatencyUnitConversion(t *testing.T) {
	ds := manyServers(2)
	f, err := Build(ds, DefaultConfig())
	require.NoError(t, err)

	for _, panel := range f.Panels[1:] {
		for _, s := range panel.Series {
			rows := ds.Group(s.Name)
			require.Len(t, s.Points, len(rows))
			for i, pt := range s.Points {
				assert.Equal(t, rows[i].Size, pt.X)
				raw := map[string]float64{ColLat90: rows[i].Lat90, ColLat99: rows[i].Lat99, ColLat999: rows[i].Lat999}[panel.Metric.Column]
				assert.InDelta(t, raw, pt.Y*1000, 1e-6)
			}
		}
	}
}

func TestBuildPointsSortedBySize(t *testing.T) {
	f, err := Build(manyServers(1), DefaultConfig())
	require.NoError(t, err)

	var xs []float64
	for _, pt := range f.Panels[0].Series[0].Points {
		xs = append(xs, pt.X)
	}
	assert.Equal(t, []float64{1, 2, 4}, xs)
}

func TestBuildDeterministicColors(t *testing.T) {
	a := &Dataset{Rows: []Row{{Server: "nginx"}, {Server: "gofer"}, {Server: "caddy"}}}
	b := &Dataset{Rows: []Row{{Server: "caddy"}, {Server: "nginx"}, {Server: "gofer"}}}

	fa, err := Build(a, DefaultConfig())
	require.NoError(t, err)
	fb, err := Build(b, DefaultConfig())
	require.NoError(t, err)

	colors := func(f *Figure) map[string]color.RGBA {
		m := map[string]color.RGBA{}
		for _, s := range f.Panels[0].Series {
			m[s.Name] = s.Color
		}
		return m
	}
	assert.Equal(t, colors(fa), colors(fb))
}

func TestBuildRejectsEmptyPalette(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Palette = nil
	_, err := Build(manyServers(1), cfg)
	require.ErrorIs(t, err, ErrEmptyPalette)
}
