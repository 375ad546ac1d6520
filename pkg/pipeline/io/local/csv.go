package local

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/core"
	"github.com/shpitdev/conference-icp-scout/pkg/pipeline/schema"
)

// DecodeFunc builds one record from a CSV row. get returns the value of a
// contract column, or "" when the column is absent. Returning false skips the row.
type DecodeFunc[In any] func(get func(col string) string) (In, bool)

// EncodeFunc writes all rows to w.
type EncodeFunc[Out any] func(w io.Writer, rows []Out) error

// ReadRecords reads a CSV whose header satisfies contract and decodes each row.
func ReadRecords[In any](r io.Reader, contract schema.Contract, decode DecodeFunc[In]) ([]In, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index, err := contract.Index(header)
	if err != nil {
		return nil, err
	}

	var out []In
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		if v, ok := decode(get); ok {
			out = append(out, v)
		}
	}
}

// CSVInput loads records from a local CSV file.
type CSVInput[In any] struct {
	Path     string
	Contract schema.Contract
	Decode   DecodeFunc[In]
}

var _ core.InputAdapter[string] = CSVInput[string]{}

func (c CSVInput[In]) Load(ctx context.Context) ([]In, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadRecords(f, c.Contract, c.Decode)
}

// FileOutput writes rows to a local file. The file is written next to its
// final location and renamed into place, so readers never see a partial CSV.
type FileOutput[Out any] struct {
	Path   string
	Encode EncodeFunc[Out]
}

var _ core.OutputAdapter[string] = FileOutput[string]{}

func (f FileOutput[Out]) Store(ctx context.Context, rows []Out) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := f.Encode(tmp, rows); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, f.Path)
}
