package chart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

// Renderer serializes a Figure.
type Renderer interface {
	Render(w io.Writer, f *Figure) error
}

// RendererFor picks a renderer from the extension of path.
func RendererFor(path string) (Renderer, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "html", "htm":
		return HTMLRenderer{}, nil
	case "png", "svg", "pdf":
		return ImageRenderer{Format: ext}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
}

// ContentType returns the media type of the artifact written for path.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".png":
		return "image/png"
	case ".svg":
		return "image/svg+xml"
	case ".pdf":
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Bytes renders f into memory.
func Bytes(r Renderer, f *Figure) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CheckOutputDir reports an error unless the parent directory of path exists.
func CheckOutputDir(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", dir, syscall.ENOTDIR)
	}
	return nil
}

// WriteFile renders f and overwrites path with the result. The parent
// directory must already exist. Nothing is written if rendering fails.
// Concurrent writers to the same path race; the last one wins.
func WriteFile(path string, r Renderer, f *Figure) ([]byte, error) {
	data, err := Bytes(r, f)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, err
	}
	return data, nil
}
