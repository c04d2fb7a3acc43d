// Package csvlog reads and writes scan logs as CSV.
//
// A log starts with the header t,angle_deg,dist_mm and holds one row per
// sample: seconds since the start of logging with 3 decimals, the angle in
// degrees with 2 decimals and the distance in whole millimeters.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/deepakkamesh/lidarview/internal/polar"
)

// Header is the first record of every log.
var Header = []string{"t", "angle_deg", "dist_mm"}

// Row is one logged sample.
type Row struct {
	T        float64 // Seconds since logging started.
	AngleDeg float64
	DistMM   int
}

// NewRow stamps a sample with the elapsed time t. The distance is truncated to
// whole millimeters.
func NewRow(t float64, s polar.Sample) Row {
	return Row{T: t, AngleDeg: s.AngleDeg, DistMM: int(s.DistanceMM)}
}

// Sample returns the row as a sample. Quality is not logged and reads back as 0.
func (r Row) Sample() polar.Sample {
	return polar.Sample{AngleDeg: r.AngleDeg, DistanceMM: float64(r.DistMM)}
}

// Record formats the row as CSV fields.
func (r Row) Record() []string {
	return []string{
		strconv.FormatFloat(r.T, 'f', 3, 64),
		strconv.FormatFloat(r.AngleDeg, 'f', 2, 64),
		strconv.Itoa(r.DistMM),
	}
}

// Writer appends rows to a log.
type Writer struct {
	w      *csv.Writer
	closer io.Closer
	rows   int
}

// NewWriter writes the header to w and returns a Writer appending to it.
func NewWriter(w io.Writer) (*Writer, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{w: cw}, nil
}

// Create creates or truncates the file at path and writes the header.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Write appends one row.
func (w *Writer) Write(r Row) error {
	if err := w.w.Write(r.Record()); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.rows++
	return nil
}

// WriteScan appends one row per sample, all stamped with t.
func (w *Writer) WriteScan(t float64, samples []polar.Sample) error {
	for _, s := range samples {
		if err := w.Write(NewRow(t, s)); err != nil {
			return err
		}
	}
	return nil
}

// Rows returns the number of rows written, not counting the header.
func (w *Writer) Rows() int {
	return w.rows
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the file opened by Create.
func (w *Writer) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader reads rows from a log. Columns are located by header name.
type Reader struct {
	r      *csv.Reader
	closer io.Closer
	cols   [3]int
}

// NewReader reads and checks the header.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: empty log")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	rd := &Reader{r: cr}
	for i, name := range Header {
		rd.cols[i] = -1
		for j, got := range header {
			if got == name {
				rd.cols[i] = j
			}
		}
		if rd.cols[i] < 0 {
			return nil, fmt.Errorf("read header: missing column %q", name)
		}
	}
	return rd, nil
}

// Open opens the log at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	rd, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	rd.closer = f
	return rd, nil
}

// Read returns the next row, or io.EOF after the last one.
func (rd *Reader) Read() (Row, error) {
	rec, err := rd.r.Read()
	if err != nil {
		return Row{}, err
	}
	line, _ := rd.r.FieldPos(0)

	for _, c := range rd.cols {
		if c >= len(rec) {
			return Row{}, fmt.Errorf("line %d: expected at least %d fields got %d", line, c+1, len(rec))
		}
	}

	t, err := strconv.ParseFloat(rec[rd.cols[0]], 64)
	if err != nil {
		return Row{}, fmt.Errorf("line %d: invalid t: %w", line, err)
	}
	angle, err := strconv.ParseFloat(rec[rd.cols[1]], 64)
	if err != nil {
		return Row{}, fmt.Errorf("line %d: invalid angle_deg: %w", line, err)
	}
	dist, err := parseDistance(rec[rd.cols[2]])
	if err != nil {
		return Row{}, fmt.Errorf("line %d: invalid dist_mm: %w", line, err)
	}
	return Row{T: t, AngleDeg: angle, DistMM: dist}, nil
}

// ReadAll returns every remaining row.
func (rd *Reader) ReadAll() ([]Row, error) {
	var rows []Row
	for {
		row, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

// Close closes the file opened by Open.
func (rd *Reader) Close() error {
	if rd.closer == nil {
		return nil
	}
	return rd.closer.Close()
}

// parseDistance accepts whole millimeters and, for logs written by other
// tools, decimal values which are truncated. Non-finite values read as 0,
// which no range window retains.
func parseDistance(s string) (int, error) {
	if d, err := strconv.Atoi(s); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, nil
	}
	return int(f), nil
}
