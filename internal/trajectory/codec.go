package trajectory

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/csv"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
)

// Format identifies an on-disk encoding of the table.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// batchRows bounds the size of each Arrow record batch built while encoding.
const batchRows = 64 * 1024

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV, "":
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: csv, parquet)", s)
	}
}

// FormatFromPath guesses the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// Encode writes recs to w in the given format.
func Encode(w io.Writer, recs []DayRecord, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, recs)
	case FormatParquet:
		return WriteParquet(w, recs)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// WriteCSV writes a header row followed by one comma-delimited row per
// record. Floats use the shortest representation that round-trips.
func WriteCSV(w io.Writer, recs []DayRecord) error {
	cw := csv.NewWriter(w, schema, csv.WithHeader(true), csv.WithComma(','))

	if len(recs) == 0 {
		// The arrow writer emits its header with the first batch.
		if _, err := io.WriteString(w, strings.Join(Columns, ",")+"\n"); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		return nil
	}

	mem := memory.NewGoAllocator()
	for start := 0; start < len(recs); start += batchRows {
		end := min(start+batchRows, len(recs))
		rec := ToArrow(mem, recs[start:end])
		err := cw.Write(rec)
		rec.Release()
		if err != nil {
			return fmt.Errorf("writing csv rows %d-%d: %w", start, end, err)
		}
	}

	if err := cw.Flush(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return cw.Error()
}

// WriteParquet writes recs as a Snappy-compressed Parquet file.
func WriteParquet(w io.Writer, recs []DayRecord) error {
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("creating parquet writer: %w", err)
	}

	mem := memory.NewGoAllocator()
	for start := 0; start < len(recs); start += batchRows {
		end := min(start+batchRows, len(recs))
		rec := ToArrow(mem, recs[start:end])
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			fw.Close()
			return fmt.Errorf("writing parquet rows %d-%d: %w", start, end, err)
		}
	}

	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return nil
}

// ReadCSV reads a table written by WriteCSV (or any file with the same
// header). The header must match Columns exactly.
func ReadCSV(r io.Reader) ([]DayRecord, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && header == "" {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header = strings.TrimPrefix(strings.TrimRight(header, "\r\n"), "\ufeff")
	if got := strings.Split(header, ","); !equalColumns(got, Columns) {
		return nil, fmt.Errorf("%w: header %q", ErrSchemaMismatch, header)
	}

	cr := csv.NewReader(br, schema, csv.WithChunk(batchRows))
	defer cr.Release()

	var out []DayRecord
	for cr.Next() {
		recs, err := FromArrow(cr.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	if err := cr.Err(); err != nil {
		return nil, fmt.Errorf("reading csv rows: %w", err)
	}
	return out, nil
}

// ReadParquet reads a table written by WriteParquet.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker) ([]DayRecord, error) {
	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, r, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("reading parquet: %w", err)
	}
	defer tbl.Release()

	if err := checkSchema(tbl.Schema()); err != nil {
		return nil, err
	}

	tr := array.NewTableReader(tbl, batchRows)
	defer tr.Release()

	out := make([]DayRecord, 0, tbl.NumRows())
	for tr.Next() {
		recs, err := FromArrow(tr.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	if err := tr.Err(); err != nil {
		return nil, fmt.Errorf("reading parquet batches: %w", err)
	}
	return out, nil
}

func equalColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if strings.TrimSpace(got[i]) != want[i] {
			return false
		}
	}
	return true
}
