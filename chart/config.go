package chart

import (
	"errors"
	"fmt"
	"image/color"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrEmptyPalette = errors.New("palette has no colors")

// Palette is an ordered list of series colors. It is indexed cyclically.
type Palette []color.RGBA

// At returns the color for the i-th category.
func (p Palette) At(i int) color.RGBA {
	return p[i%len(p)]
}

// ParseHexColor parses a "#rrggbb" string.
func ParseHexColor(s string) (color.RGBA, error) {
	c := color.RGBA{A: 0xff}
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %v", s, err)
	}
	return c, nil
}

// HexColor formats c as "#rrggbb".
func HexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

var defaultPalette = []string{
	"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd",
	"#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf",
}

// Config controls everything about the figure that is not derived from the
// data.
type Config struct {
	Title   string
	Palette Palette
	// Width and Height of the whole figure, in pixels for HTML and points
	// for images.
	Width  int
	Height int

	LegendOrientation string
	HoverMode         string
}

func DefaultConfig() Config {
	palette := make(Palette, len(defaultPalette))
	for i, s := range defaultPalette {
		palette[i], _ = ParseHexColor(s)
	}
	return Config{
		Title:             "Benchmark results",
		Palette:           palette,
		Width:             1200,
		Height:            900,
		LegendOrientation: "horizontal",
		HoverMode:         "x",
	}
}

type fileConfig struct {
	Title             *string   `yaml:"title"`
	Palette           *[]string `yaml:"palette"`
	Width             *int      `yaml:"width"`
	Height            *int      `yaml:"height"`
	LegendOrientation *string   `yaml:"legend_orientation"`
	HoverMode         *string   `yaml:"hover_mode"`
}

// LoadConfig reads a YAML file and applies it on top of DefaultConfig. Keys
// missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("while parsing config: %w", err)
	}

	if fc.Title != nil {
		cfg.Title = *fc.Title
	}
	if fc.Palette != nil {
		palette := make(Palette, 0, len(*fc.Palette))
		for _, s := range *fc.Palette {
			c, err := ParseHexColor(s)
			if err != nil {
				return Config{}, err
			}
			palette = append(palette, c)
		}
		cfg.Palette = palette
	}
	if fc.Width != nil {
		cfg.Width = *fc.Width
	}
	if fc.Height != nil {
		cfg.Height = *fc.Height
	}
	if fc.LegendOrientation != nil {
		cfg.LegendOrientation = *fc.LegendOrientation
	}
	if fc.HoverMode != nil {
		cfg.HoverMode = *fc.HoverMode
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Palette) == 0 {
		return ErrEmptyPalette
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid figure size %dx%d", c.Width, c.Height)
	}
	return nil
}
