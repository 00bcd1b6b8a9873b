package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/lifesim/internal/archetype"
	"github.com/nvandessel/lifesim/internal/generate"
	"github.com/nvandessel/lifesim/internal/manifest"
	"github.com/nvandessel/lifesim/internal/pathutil"
	"github.com/nvandessel/lifesim/internal/ratelimit"
	"github.com/nvandessel/lifesim/internal/trajectory"
)

// maxToolRows bounds the table size an agent can request in one call.
const maxToolRows = 10_000_000

const archetypesURI = "lifesim://archetypes"

// registerTools registers all lifesim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lifesim_generate",
		Description: "Simulate a population of subjects and write the daily lifestyle trajectory table to CSV or Parquet",
	}, s.handleGenerate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lifesim_validate",
		Description: "Check a dataset file for row order, completeness, clip bounds and finite hidden indices, optionally against its manifest",
	}, s.handleValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "lifesim_archetypes",
		Description: "List the lifestyle archetypes subjects are drawn from",
	}, s.handleArchetypes)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         archetypesURI,
		Name:        "lifesim-archetypes",
		Description: "Archetype catalog and dataset column layout.",
		MIMEType:    "text/markdown",
	}, s.handleArchetypesResource)
}

// handleArchetypesResource renders the catalog and column list as markdown.
func (s *Server) handleArchetypesResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var sb strings.Builder
	sb.WriteString("# Lifestyle Archetypes\n\n")
	sb.WriteString("Initial values are drawn from N(mean, std) per variable. Archetype identity is not written to the dataset.\n\n")
	sb.WriteString("| archetype | sleep | stress | activity | junk | alcohol |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, a := range s.catalog.All() {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s |\n",
			a.Name, param(a.Sleep), param(a.Stress), param(a.Activity), param(a.Junk), param(a.Alcohol))
	}
	sb.WriteString("\n## Columns\n\n")
	sb.WriteString(strings.Join(trajectory.Columns, ", "))
	sb.WriteString("\n")

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      archetypesURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

func param(p archetype.Param) string {
	return fmt.Sprintf("%g ± %g", p.Mean, p.Std)
}

// handleGenerate implements the lifesim_generate tool.
func (s *Server) handleGenerate(ctx context.Context, req *sdk.CallToolRequest, args GenerateInput) (_ *sdk.CallToolResult, _ GenerateOutput, retErr error) {
	start := time.Now()
	scope := "local"
	defer func() {
		params := map[string]interface{}{
			"subjects": args.Subjects, "days": args.Days, "workers": args.Workers,
			"format": args.Format, "create_dirs": args.CreateDirs,
		}
		if args.Seed != nil {
			params["seed"] = *args.Seed
		}
		if args.Output != "" {
			params["output"] = args.Output
		}
		s.auditTool("lifesim_generate", start, retErr, sanitizeToolParams(params), scope)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lifesim_generate"); err != nil {
		return nil, GenerateOutput{}, err
	}

	cfg := *s.settings
	if args.Subjects != 0 {
		cfg.Simulation.Subjects = args.Subjects
	}
	if args.Days != 0 {
		cfg.Simulation.Days = args.Days
	}
	if args.Seed != nil {
		seed := *args.Seed
		cfg.Simulation.Seed = &seed
	}
	if args.Workers != 0 {
		cfg.Simulation.Workers = args.Workers
	}
	switch {
	case args.Format != "":
		cfg.Output.Format = args.Format
	case args.Output != "":
		cfg.Output.Format = ""
	}
	cfg.Output.CreateDirs = args.CreateDirs

	if rows := int64(cfg.Simulation.Subjects) * int64(cfg.Simulation.Days); rows > maxToolRows {
		return nil, GenerateOutput{}, fmt.Errorf("requested %d rows, limit is %d", rows, maxToolRows)
	}

	output := args.Output
	if output == "" {
		output = cfg.Output.Path
	}
	output, err := s.resolvePath(output)
	if err != nil {
		return nil, GenerateOutput{}, fmt.Errorf("output path rejected: %w", err)
	}
	cfg.Output.Path = output
	if s.underHome(output) {
		scope = "global"
	}

	rep, err := generate.Run(ctx, generate.Options{
		Config:  &cfg,
		Version: s.version,
		Catalog: &s.catalog,
		Logger:  s.logger,
	})
	if err != nil {
		return nil, GenerateOutput{}, fmt.Errorf("generate failed: %w", err)
	}

	return nil, GenerateOutput{
		RunID:      rep.RunID,
		Seed:       rep.Seed,
		Path:       rep.Output.Path,
		Format:     string(rep.Output.Format),
		Rows:       rep.Output.Rows,
		SizeBytes:  rep.Output.Bytes,
		Checksum:   rep.Output.Checksum,
		Manifest:   rep.Manifest,
		Archetypes: rep.Archetypes,
		Message: fmt.Sprintf("Generated %d subjects x %d days (seed %d) → %s",
			rep.Subjects, rep.Days, rep.Seed, rep.Output.Path),
	}, nil
}

// handleValidate implements the lifesim_validate tool.
func (s *Server) handleValidate(ctx context.Context, req *sdk.CallToolRequest, args ValidateInput) (_ *sdk.CallToolResult, _ ValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lifesim_validate", start, retErr, sanitizeToolParams(map[string]interface{}{
			"path": args.Path, "format": args.Format, "verify_manifest": args.VerifyManifest,
		}), "local")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lifesim_validate"); err != nil {
		return nil, ValidateOutput{}, err
	}

	if args.Path == "" {
		return nil, ValidateOutput{}, fmt.Errorf("'path' parameter is required")
	}
	if args.Subjects < 0 || args.Days < 0 {
		return nil, ValidateOutput{}, fmt.Errorf("subjects and days must be non-negative")
	}
	path, err := s.resolvePath(args.Path)
	if err != nil {
		return nil, ValidateOutput{}, fmt.Errorf("dataset path rejected: %w", err)
	}

	var format trajectory.Format
	if args.Format != "" {
		if format, err = trajectory.ParseFormat(args.Format); err != nil {
			return nil, ValidateOutput{}, err
		}
	}

	recs, err := trajectory.ReadFile(ctx, path, format)
	if err != nil {
		return nil, ValidateOutput{}, fmt.Errorf("reading dataset: %w", err)
	}

	subjects, days := trajectory.InferShape(recs)
	if args.Subjects > 0 {
		subjects = args.Subjects
	}
	if args.Days > 0 {
		days = args.Days
	}
	report := trajectory.Check(recs, subjects, days)

	out := ValidateOutput{
		Valid:      report.OK(),
		Rows:       report.Rows,
		Subjects:   report.Subjects,
		Days:       report.Days,
		Violations: report.Violations,
		Truncated:  report.Truncated,
	}

	if args.VerifyManifest {
		m, err := manifest.Read(manifest.Path(path))
		if err != nil {
			return nil, ValidateOutput{}, fmt.Errorf("reading manifest: %w", err)
		}
		switch err := manifest.Verify(m, path); {
		case err == nil:
			out.ManifestVerified = true
		case errors.Is(err, manifest.ErrChecksumMismatch):
			out.Valid = false
		default:
			return nil, ValidateOutput{}, err
		}
	}

	switch {
	case out.Valid:
		out.Message = fmt.Sprintf("Dataset valid: %d rows (%d subjects x %d days)", out.Rows, out.Subjects, out.Days)
	case args.VerifyManifest && !out.ManifestVerified:
		out.Message = fmt.Sprintf("Dataset does not match its manifest (%d invariant violations)", len(out.Violations))
	default:
		out.Message = fmt.Sprintf("Dataset invalid: %d violations", len(out.Violations))
	}

	return nil, out, nil
}

// handleArchetypes implements the lifesim_archetypes tool.
func (s *Server) handleArchetypes(ctx context.Context, req *sdk.CallToolRequest, args ArchetypesInput) (_ *sdk.CallToolResult, _ ArchetypesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("lifesim_archetypes", start, retErr, nil, "local")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "lifesim_archetypes"); err != nil {
		return nil, ArchetypesOutput{}, err
	}

	all := s.catalog.All()
	return nil, ArchetypesOutput{Archetypes: all, Count: len(all)}, nil
}

// resolvePath makes path absolute against the project root and checks it
// against the allowed output directories.
func (s *Server) resolvePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	allowed, err := pathutil.DefaultAllowedOutputDirs(s.root)
	if err != nil {
		return "", err
	}
	if err := pathutil.ValidatePath(path, allowed); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

func (s *Server) underHome(path string) bool {
	dir := filepath.Join(s.home, ".lifesim")
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
