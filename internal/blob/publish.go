package blob

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// contentTypes maps output extensions to MIME types.
var contentTypes = map[string]string{
	".csv":     "text/csv",
	".parquet": "application/vnd.apache.parquet",
	".json":    "application/json",
	".jsonl":   "application/x-ndjson",
}

// ContentType guesses a MIME type from a file name.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Key joins prefix, runID, and the file's base name into an object key.
func Key(prefix, runID, file string) string {
	return path.Join(strings.Trim(prefix, "/"), runID, filepath.Base(file))
}

// Publish uploads each file under prefix/runID/ and returns the stored
// objects in argument order. It stops at the first failure.
func Publish(ctx context.Context, st Store, prefix, runID string, metadata map[string]string, files ...string) ([]Info, error) {
	infos := make([]Info, 0, len(files))
	for _, file := range files {
		info, err := publishFile(ctx, st, Key(prefix, runID, file), file, metadata)
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func publishFile(ctx context.Context, st Store, key, file string, metadata map[string]string) (Info, error) {
	f, err := os.Open(file)
	if err != nil {
		return Info{}, fmt.Errorf("opening %s: %w", filepath.Base(file), err)
	}
	defer f.Close()

	info, err := st.Put(ctx, key, f, PutOptions{ContentType: ContentType(file), Metadata: metadata})
	if err != nil {
		return Info{}, fmt.Errorf("publishing %s: %w", key, err)
	}
	return info, nil
}
