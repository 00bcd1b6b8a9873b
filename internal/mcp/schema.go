// Package mcp provides an MCP (Model Context Protocol) server for lifesim.
package mcp

import (
	"github.com/nvandessel/lifesim/internal/archetype"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

// GenerateInput defines the input for the lifesim_generate tool.
type GenerateInput struct {
	Subjects   int     `json:"subjects,omitempty" jsonschema:"description=Number of subjects to simulate (default: 500)"`
	Days       int     `json:"days,omitempty" jsonschema:"description=Days per subject (default: 120)"`
	Seed       *uint64 `json:"seed,omitempty" jsonschema:"description=Random seed; omit for a random seed recorded in the result"`
	Workers    int     `json:"workers,omitempty" jsonschema:"description=Concurrent subject workers (default: number of CPUs)"`
	Output     string  `json:"output,omitempty" jsonschema:"description=Output file path under <project>/data or ~/.lifesim/datasets"`
	Format     string  `json:"format,omitempty" jsonschema:"description=Output format: 'csv' or 'parquet' (default: inferred from extension)"`
	CreateDirs bool    `json:"create_dirs,omitempty" jsonschema:"description=Create missing parent directories of the output file (default: false)"`
}

// GenerateOutput defines the output for the lifesim_generate tool.
type GenerateOutput struct {
	RunID      string         `json:"run_id" jsonschema:"description=Identifier of this run"`
	Seed       uint64         `json:"seed" jsonschema:"description=Seed used for the run"`
	Path       string         `json:"path" jsonschema:"description=Path of the written dataset"`
	Format     string         `json:"format" jsonschema:"description=Format of the written dataset"`
	Rows       int            `json:"rows" jsonschema:"description=Number of rows written"`
	SizeBytes  int64          `json:"size_bytes" jsonschema:"description=Size of the dataset file in bytes"`
	Checksum   string         `json:"checksum" jsonschema:"description=SHA-256 checksum of the dataset file"`
	Manifest   string         `json:"manifest,omitempty" jsonschema:"description=Path of the run manifest"`
	Archetypes map[string]int `json:"archetypes" jsonschema:"description=Subjects drawn per archetype"`
	Message    string         `json:"message" jsonschema:"description=Human-readable result message"`
}

// ValidateInput defines the input for the lifesim_validate tool.
type ValidateInput struct {
	Path           string `json:"path" jsonschema:"description=Dataset file to check,required"`
	Format         string `json:"format,omitempty" jsonschema:"description=File format: 'csv' or 'parquet' (default: inferred from extension)"`
	Subjects       int    `json:"subjects,omitempty" jsonschema:"description=Expected subject count (default: inferred from the data)"`
	Days           int    `json:"days,omitempty" jsonschema:"description=Expected days per subject (default: inferred from the data)"`
	VerifyManifest bool   `json:"verify_manifest,omitempty" jsonschema:"description=Also verify the file against its .manifest.json checksum"`
}

// ValidateOutput defines the output for the lifesim_validate tool.
type ValidateOutput struct {
	Valid            bool                   `json:"valid" jsonschema:"description=Whether the dataset satisfies every table invariant"`
	Rows             int                    `json:"rows" jsonschema:"description=Number of rows read"`
	Subjects         int                    `json:"subjects" jsonschema:"description=Subject count checked against"`
	Days             int                    `json:"days" jsonschema:"description=Days per subject checked against"`
	Violations       []trajectory.Violation `json:"violations,omitempty" jsonschema:"description=Invariant violations found"`
	Truncated        bool                   `json:"truncated,omitempty" jsonschema:"description=Whether the violation list was capped"`
	ManifestVerified bool                   `json:"manifest_verified,omitempty" jsonschema:"description=Whether the manifest checksum matched"`
	Message          string                 `json:"message" jsonschema:"description=Human-readable summary"`
}

// ArchetypesInput defines the input for the lifesim_archetypes tool.
type ArchetypesInput struct{}

// ArchetypesOutput defines the output for the lifesim_archetypes tool.
type ArchetypesOutput struct {
	Archetypes []archetype.Archetype `json:"archetypes" jsonschema:"description=Archetypes in catalog order with initial (mean, std) per variable"`
	Count      int                   `json:"count" jsonschema:"description=Number of archetypes"`
}
