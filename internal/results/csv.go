package results

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// CSVSink writes one CSV file per table under Dir, at
// <run>/<experiment>/<model>/results_<unix>.csv. When that file already
// exists a short unique suffix is added to the name.
type CSVSink struct {
	Dir string

	written []string
}

// NewCSVSink creates a sink rooted at dir.
func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{Dir: dir}
}

// Name implements Sink.
func (s *CSVSink) Name() string { return "csv" }

// Write implements Sink.
func (s *CSVSink) Write(ctx context.Context, target Target, table *Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(s.Dir) == "" {
		return errors.New("csv sink: results directory is required")
	}

	dir := filepath.Join(s.Dir, filepath.FromSlash(target.Dir()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("csv sink: create %s: %w", dir, err)
	}

	f, err := createExclusive(dir, target.FileName())
	if err != nil {
		return fmt.Errorf("csv sink: %w", err)
	}
	if err := WriteCSV(f, table); err != nil {
		_ = f.Close()
		return fmt.Errorf("csv sink: write %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("csv sink: close %s: %w", f.Name(), err)
	}
	s.written = append(s.written, f.Name())
	return nil
}

// Written returns the paths of files written so far.
func (s *CSVSink) Written() []string {
	out := make([]string, len(s.written))
	copy(out, s.written)
	return out
}

func createExclusive(dir, name string) (*os.File, error) {
	p := filepath.Join(dir, name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	p = filepath.Join(dir, base+"_"+uuid.NewString()[:8]+ext)
	return os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}
