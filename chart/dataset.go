package chart

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// Column names consumed from the benchmark results table.
const (
	ColServer = "server"
	ColSize   = "size"
	ColReqPS  = "reqps"
	ColLat90  = "lat90"
	ColLat99  = "lat99"
	ColLat999 = "lat99.9"
)

var requiredColumns = []string{ColServer, ColSize, ColReqPS, ColLat90, ColLat99, ColLat999}

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrBadValue      = errors.New("bad numeric value")
	ErrNoInput       = errors.New("no csv files found")
)

// Row is one benchmark measurement. Latencies are in microseconds.
type Row struct {
	Server string
	Size   float64
	ReqPS  float64
	Lat90  float64
	Lat99  float64
	Lat999 float64
}

// Dataset is the full results table, held in memory.
type Dataset struct {
	Rows []Row
}

// ReadCSV parses a results table with a header row. Columns may appear in
// any order and unknown columns are ignored.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("while reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	for _, name := range requiredColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}

	ds := &Dataset{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while reading record: %w", err)
		}
		line, _ := reader.FieldPos(0)

		row := Row{Server: record[index[ColServer]]}
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{ColSize, &row.Size},
			{ColReqPS, &row.ReqPS},
			{ColLat90, &row.Lat90},
			{ColLat99, &row.Lat99},
			{ColLat999, &row.Lat999},
		} {
			v, err := strconv.ParseFloat(record[index[f.col]], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d, column %q: %v", ErrBadValue, line, f.col, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: line %d, column %q: %v is not finite", ErrBadValue, line, f.col, v)
			}
			*f.dst = v
		}
		ds.Rows = append(ds.Rows, row)
	}

	return ds, nil
}

// LoadFile reads a results table from path.
func LoadFile(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ds, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// LoadDir loads every *.csv file in dir concurrently and concatenates the
// rows in lexical file order. All files must carry the required columns.
func LoadDir(ctx context.Context, dir string) (*Dataset, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		// Glob hides a missing directory.
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w in %s", ErrNoInput, dir)
	}
	sort.Strings(paths)

	parts := make([]*Dataset, len(paths))
	eG, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		eG.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ds, err := LoadFile(path)
			if err != nil {
				return err
			}
			parts[i] = ds
			return nil
		})
	}
	if err := eG.Wait(); err != nil {
		return nil, err
	}

	merged := &Dataset{}
	for _, ds := range parts {
		merged.Rows = append(merged.Rows, ds.Rows...)
	}
	return merged, nil
}

// Servers returns the distinct server names, sorted so that color assignment
// does not depend on row order.
func (d *Dataset) Servers() []string {
	seen := make(map[string]struct{})
	var servers []string
	for _, row := range d.Rows {
		if _, ok := seen[row.Server]; ok {
			continue
		}
		seen[row.Server] = struct{}{}
		servers = append(servers, row.Server)
	}
	sort.Strings(servers)
	return servers
}

// Group returns the rows of one server, ordered by size.
func (d *Dataset) Group(server string) []Row {
	var rows []Row
	for _, row := range d.Rows {
		if row.Server == server {
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Size < rows[j].Size
	})
	return rows
}
