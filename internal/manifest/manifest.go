// Package manifest writes and verifies the JSON sidecar that describes a
// generated trajectory file: how it was produced and what its bytes hash to.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/lifesim/internal/trajectory"
)

// FormatV1 is the only manifest version written so far.
const FormatV1 = 1

// Suffix is appended to an output path to name its manifest.
const Suffix = ".manifest.json"

// ErrChecksumMismatch is returned by Verify when the data file no longer
// matches its manifest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Manifest describes one generated trajectory file.
type Manifest struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Generator string    `json:"generator"`

	Seed     uint64 `json:"seed"`
	Subjects int    `json:"subjects"`
	Days     int    `json:"days"`

	File      string   `json:"file"`
	Format    string   `json:"format"`
	Columns   []string `json:"columns"`
	Rows      int      `json:"rows"`
	SizeBytes int64    `json:"size_bytes"`
	Checksum  string   `json:"checksum"`

	// Archetypes counts subjects per archetype. The table itself never
	// carries archetype identity.
	Archetypes map[string]int    `json:"archetypes,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Run identifies the generator run a manifest belongs to.
type Run struct {
	Generator  string
	Seed       uint64
	Subjects   int
	Days       int
	Archetypes map[string]int
}

// New builds a manifest for a file written by trajectory.WriteFile.
func New(run Run, wr *trajectory.WriteResult) *Manifest {
	return &Manifest{
		Version:    FormatV1,
		CreatedAt:  time.Now().UTC(),
		Generator:  run.Generator,
		Seed:       run.Seed,
		Subjects:   run.Subjects,
		Days:       run.Days,
		File:       filepath.Base(wr.Path),
		Format:     string(wr.Format),
		Columns:    append([]string(nil), trajectory.Columns...),
		Rows:       wr.Rows,
		SizeBytes:  wr.Bytes,
		Checksum:   wr.Checksum,
		Archetypes: run.Archetypes,
	}
}

// Path returns the manifest path that accompanies an output file.
func Path(output string) string {
	return output + Suffix
}

// Write stores m as indented JSON at path, replacing any previous manifest
// atomically.
func Write(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming manifest into place: %w", err)
	}
	return nil
}

// Read loads a manifest from path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != FormatV1 {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// Checksum returns the "sha256:<hex>" digest of the file at path and its size.
func Checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	n, err := io.Copy(hash, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing file: %w", err)
	}
	return "sha256:" + hex.EncodeToString(hash.Sum(nil)), n, nil
}

// Verify checks that the data file at dataPath matches m.
func Verify(m *Manifest, dataPath string) error {
	actual, size, err := Checksum(dataPath)
	if err != nil {
		return err
	}
	if actual != m.Checksum {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, m.Checksum, actual)
	}
	if size != m.SizeBytes {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrChecksumMismatch, m.SizeBytes, size)
	}
	return nil
}
