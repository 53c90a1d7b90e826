package results

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"
)

// Target identifies the table being written.
type Target struct {
	RunID        string
	ExperimentID string
	ModelID      string
	Iteration    int
	Timestamp    time.Time
}

// Dir returns the relative directory <run>/<experiment>/<model>.
func (t Target) Dir() string {
	return path.Join(pathSegment(t.RunID), pathSegment(t.ExperimentID), pathSegment(t.ModelID))
}

// FileName returns results_<unix seconds>.csv.
func (t Target) FileName() string {
	return "results_" + strconv.FormatInt(t.Timestamp.Unix(), 10) + ".csv"
}

func pathSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Sink persists result tables.
type Sink interface {
	// Name labels the sink in logs and metrics.
	Name() string
	Write(ctx context.Context, target Target, table *Table) error
}

// MultiSink writes to each sink in order. Every sink is attempted and the
// failures are joined.
type MultiSink []Sink

// Name implements Sink.
func (m MultiSink) Name() string {
	names := make([]string, 0, len(m))
	for _, s := range m {
		names = append(names, s.Name())
	}
	return strings.Join(names, "+")
}

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, target Target, table *Table) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, target, table); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// WriteCSV renders table as CSV. The first column holds the row index and
// has an empty header; absent cells are empty.
func WriteCSV(w io.Writer, table *Table) error {
	cw := csv.NewWriter(w)
	columns := table.Columns()

	record := make([]string, 0, len(columns)+1)
	record = append(record, "")
	record = append(record, columns...)
	if err := cw.Write(record); err != nil {
		return err
	}

	for i := 0; i < table.Len(); i++ {
		record = record[:0]
		record = append(record, strconv.Itoa(i))
		for _, col := range columns {
			record = append(record, table.Cell(i, col).String())
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
