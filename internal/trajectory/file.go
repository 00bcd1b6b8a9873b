package trajectory

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nvandessel/lifesim/internal/pathutil"
)

// WriteOptions controls WriteFile.
type WriteOptions struct {
	Format Format

	// CreateDirs creates missing parent directories. Without it a missing
	// output directory is an error.
	CreateDirs bool
}

// WriteResult describes a file written by WriteFile.
type WriteResult struct {
	Path     string `json:"path"`
	Format   Format `json:"format"`
	Rows     int    `json:"rows"`
	Bytes    int64  `json:"size_bytes"`
	Checksum string `json:"checksum"`
}

// WriteFile encodes the table in one batch to a temp file next to path and
// renames it into place. On any failure the destination is left untouched.
func WriteFile(path string, t *Table, opts WriteOptions) (*WriteResult, error) {
	format := opts.Format
	if format == "" {
		format = FormatFromPath(path)
	}

	dir := filepath.Dir(path)
	if opts.CreateDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory %s: %w", pathutil.RedactPath(dir), err)
		}
	}
	if err := pathutil.CheckWritableDir(dir); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hash)}
	// bufio.Writer hides Close from encoders that would otherwise close the sink.
	bw := bufio.NewWriterSize(counter, 1<<20)

	if err := Encode(bw, t.Records, format); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", format, err)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("flushing output: %w", err)
	}
	// CreateTemp opens files 0600.
	if err := tmp.Chmod(0644); err != nil {
		return nil, fmt.Errorf("setting output permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("syncing output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("renaming output into place: %w", err)
	}
	committed = true

	return &WriteResult{
		Path:     path,
		Format:   format,
		Rows:     t.Len(),
		Bytes:    counter.n,
		Checksum: "sha256:" + hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// ReadFile reads a table file in the given format (guessed from the
// extension when empty).
func ReadFile(ctx context.Context, path string, format Format) ([]DayRecord, error) {
	if format == "" {
		format = FormatFromPath(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", pathutil.RedactPath(path), err)
	}
	defer f.Close()

	switch format {
	case FormatCSV:
		return ReadCSV(f)
	case FormatParquet:
		return ReadParquet(ctx, f)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
