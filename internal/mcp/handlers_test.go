package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/lifesim/internal/archetype"
	"github.com/nvandessel/lifesim/internal/manifest"
)

func seed(v uint64) *uint64 { return &v }

func TestHandleGenerate_DefaultPath(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	defer server.Close()

	result, output, err := server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
		Subjects:   3,
		Days:       5,
		Seed:       seed(7),
		CreateDirs: true,
	})
	if err != nil {
		t.Fatalf("handleGenerate failed: %v", err)
	}
	if result != nil {
		t.Error("Expected nil result (SDK auto-populates)")
	}

	want := filepath.Join(tmpDir, "data", "raw", "lifestyle", "simulated", "lifestyle_advanced.csv")
	if output.Path != want {
		t.Errorf("Path = %q, want %q", output.Path, want)
	}
	if output.Rows != 15 {
		t.Errorf("Rows = %d, want 15", output.Rows)
	}
	if output.Seed != 7 {
		t.Errorf("Seed = %d, want 7", output.Seed)
	}
	if output.Format != "csv" {
		t.Errorf("Format = %q, want csv", output.Format)
	}
	if !strings.HasPrefix(output.Checksum, "sha256:") {
		t.Errorf("Checksum = %q, want sha256: prefix", output.Checksum)
	}
	if _, err := os.Stat(output.Manifest); err != nil {
		t.Errorf("manifest not written: %v", err)
	}

	total := 0
	for _, n := range output.Archetypes {
		total += n
	}
	if total != 3 {
		t.Errorf("archetype counts sum to %d, want 3", total)
	}
}

func TestHandleGenerate_ParquetFromExtension(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	_, output, err := server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
		Subjects: 2,
		Days:     4,
		Seed:     seed(1),
		Output:   "data/out.parquet",
	})
	if err != nil {
		t.Fatalf("handleGenerate failed: %v", err)
	}
	if output.Format != "parquet" {
		t.Errorf("Format = %q, want parquet", output.Format)
	}
}

func TestHandleGenerate_MissingDirectory(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	_, _, err := server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
		Subjects: 2,
		Days:     2,
		Output:   "data/missing/out.csv",
	})
	if err == nil {
		t.Fatal("expected error for missing output directory")
	}
	if !strings.Contains(err.Error(), "output directory unusable") {
		t.Errorf("error = %v, want output directory unusable", err)
	}
}

func TestHandleGenerate_RejectsOutsidePath(t *testing.T) {
	tests := []string{
		filepath.Join(t.TempDir(), "out.csv"),
		"../escape.csv",
		"out.csv",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			// Fresh server per case so the generate burst is never the cause.
			server, _ := setupTestServer(t)
			defer server.Close()

			_, _, err := server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
				Subjects: 1, Days: 1, Output: path,
			})
			if err == nil || !strings.Contains(err.Error(), "output path rejected") {
				t.Errorf("Output %q: err = %v, want output path rejected", path, err)
			}
		})
	}
}

func TestHandleGenerate_RowLimit(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	_, _, err := server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
		Subjects: 1_000_000,
		Days:     365,
	})
	if err == nil || !strings.Contains(err.Error(), "limit") {
		t.Errorf("err = %v, want row limit error", err)
	}
}

func TestHandleGenerate_InvalidArgs(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	_, _, err := server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
		Subjects: -1, Days: 5, Output: "data/out.csv",
	})
	if err == nil {
		t.Error("expected error for negative subjects")
	}

	_, _, err = server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
		Subjects: 1, Days: 5, Output: "data/out.csv", Format: "xlsx",
	})
	if err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestHandleGenerate_HomeDatasetsAuditedGlobally(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	home := os.Getenv("HOME")
	out := filepath.Join(home, ".lifesim", "datasets", "run.csv")
	_, output, err := server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
		Subjects: 1, Days: 2, Seed: seed(3), Output: out, CreateDirs: true,
	})
	if err != nil {
		t.Fatalf("handleGenerate failed: %v", err)
	}
	if output.Path != out {
		t.Errorf("Path = %q, want %q", output.Path, out)
	}

	data, err := os.ReadFile(filepath.Join(home, ".lifesim", "audit.jsonl"))
	if err != nil {
		t.Fatalf("reading global audit log: %v", err)
	}
	if !strings.Contains(string(data), `"tool":"lifesim_generate"`) {
		t.Errorf("global audit log missing generate entry: %s", data)
	}
}

func TestHandleGenerate_RateLimited(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	args := GenerateInput{Subjects: 1, Days: 1, Seed: seed(1), Output: "data/out.csv"}
	var lastErr error
	for i := 0; i < 3; i++ {
		_, _, lastErr = server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, args)
	}
	if lastErr == nil || !strings.Contains(lastErr.Error(), "rate limit exceeded") {
		t.Errorf("third call err = %v, want rate limit error", lastErr)
	}
}

func generateFixture(t *testing.T, server *Server) GenerateOutput {
	t.Helper()
	_, output, err := server.handleGenerate(context.Background(), &sdk.CallToolRequest{}, GenerateInput{
		Subjects: 4, Days: 6, Seed: seed(11), Output: "data/fixture.csv",
	})
	if err != nil {
		t.Fatalf("handleGenerate failed: %v", err)
	}
	return output
}

func TestHandleValidate_Valid(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()
	gen := generateFixture(t, server)

	result, output, err := server.handleValidate(context.Background(), &sdk.CallToolRequest{}, ValidateInput{
		Path:           "data/fixture.csv",
		VerifyManifest: true,
	})
	if err != nil {
		t.Fatalf("handleValidate failed: %v", err)
	}
	if result != nil {
		t.Error("Expected nil result (SDK auto-populates)")
	}
	if !output.Valid {
		t.Errorf("expected valid dataset, violations: %+v", output.Violations)
	}
	if !output.ManifestVerified {
		t.Error("expected manifest to verify")
	}
	if output.Rows != gen.Rows || output.Subjects != 4 || output.Days != 6 {
		t.Errorf("shape = %d rows (%d x %d), want 24 (4 x 6)", output.Rows, output.Subjects, output.Days)
	}
}

func TestHandleValidate_WrongShape(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()
	generateFixture(t, server)

	_, output, err := server.handleValidate(context.Background(), &sdk.CallToolRequest{}, ValidateInput{
		Path: "data/fixture.csv",
		Days: 5,
	})
	if err != nil {
		t.Fatalf("handleValidate failed: %v", err)
	}
	if output.Valid {
		t.Error("expected violations when days does not match")
	}
	if len(output.Violations) == 0 {
		t.Error("expected violations to be reported")
	}
}

func TestHandleValidate_ManifestMismatch(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()
	gen := generateFixture(t, server)

	m, err := manifest.Read(gen.Manifest)
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	m.Checksum = "sha256:0000"
	if err := manifest.Write(gen.Manifest, m); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	_, output, err := server.handleValidate(context.Background(), &sdk.CallToolRequest{}, ValidateInput{
		Path:           gen.Path,
		VerifyManifest: true,
	})
	if err != nil {
		t.Fatalf("handleValidate failed: %v", err)
	}
	if output.Valid || output.ManifestVerified {
		t.Errorf("expected manifest mismatch, got valid=%v verified=%v", output.Valid, output.ManifestVerified)
	}
	if !strings.Contains(output.Message, "manifest") {
		t.Errorf("Message = %q, want manifest mention", output.Message)
	}
}

func TestHandleValidate_Errors(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	tests := []struct {
		name string
		args ValidateInput
		want string
	}{
		{"missing path", ValidateInput{}, "required"},
		{"outside root", ValidateInput{Path: "/etc/passwd"}, "dataset path rejected"},
		{"no such file", ValidateInput{Path: "data/none.csv"}, "reading dataset"},
		{"bad format", ValidateInput{Path: "data/none.csv", Format: "json"}, "format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := server.handleValidate(context.Background(), &sdk.CallToolRequest{}, tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestHandleArchetypes(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	_, output, err := server.handleArchetypes(context.Background(), &sdk.CallToolRequest{}, ArchetypesInput{})
	if err != nil {
		t.Fatalf("handleArchetypes failed: %v", err)
	}
	if output.Count != 5 || len(output.Archetypes) != 5 {
		t.Fatalf("Count = %d, want 5", output.Count)
	}
	if output.Archetypes[1].Name != archetype.Balanced {
		t.Errorf("second archetype = %q, want %q", output.Archetypes[1].Name, archetype.Balanced)
	}
}

func TestArchetypesResource(t *testing.T) {
	server, _ := setupTestServer(t)
	defer server.Close()

	res, err := server.handleArchetypesResource(context.Background(), &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleArchetypesResource failed: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(res.Contents))
	}
	text := res.Contents[0].Text
	for _, want := range []string{archetype.FitLowStress, "7 ± 0.5", "oxidative_stress"} {
		if !strings.Contains(text, want) {
			t.Errorf("resource text missing %q", want)
		}
	}
}
