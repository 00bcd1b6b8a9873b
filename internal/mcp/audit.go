package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	scopeLocal  = "local"
	scopeGlobal = "global"
)

// AuditEntry records one MCP tool invocation. It carries run shape and
// timing only, never dataset contents or raw paths.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	Scope      string            `json:"scope"` // "local" or "global"
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends entries to one JSONL file per scope: the project's
// .lifesim/audit.jsonl for local runs and the home directory's for runs
// that wrote under ~/.lifesim. It is safe for concurrent use, and a nil
// AuditLogger discards everything.
type AuditLogger struct {
	mu    sync.Mutex
	files map[string]*os.File
}

// AuditLogPath returns the audit log location under dir.
func AuditLogPath(dir string) string {
	return filepath.Join(dir, ".lifesim", "audit.jsonl")
}

func openAuditLog(dir string) (*os.File, error) {
	path := AuditLogPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("cannot create audit log directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("cannot open audit log %s: %w", path, err)
	}
	return f, nil
}

// NewAuditLogger opens the local audit log under localDir and the global
// one under globalDir. A scope whose file cannot be opened is skipped with
// a warning on stderr; if neither opens, NewAuditLogger returns nil.
func NewAuditLogger(localDir, globalDir string) *AuditLogger {
	a := &AuditLogger{files: make(map[string]*os.File, 2)}
	for _, s := range []struct{ scope, dir string }{
		{scopeLocal, localDir},
		{scopeGlobal, globalDir},
	} {
		f, err := openAuditLog(s.dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
			continue
		}
		a.files[s.scope] = f
	}
	if len(a.files) == 0 {
		return nil
	}
	return a
}

// Log appends entry to the log for its scope. Anything other than
// "global" is treated as local. Entries for a scope without a file are
// dropped.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	if entry.Scope != scopeGlobal {
		entry.Scope = scopeLocal
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if f := a.files[entry.Scope]; f != nil {
		_, _ = f.Write(data)
	}
}

// Close closes every open audit log. Safe to call on nil receiver.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for scope, f := range a.files {
		errs = append(errs, f.Close())
		delete(a.files, scope)
	}
	return errors.Join(errs...)
}

// sanitizeToolParams extracts safe metadata from tool parameters.
// Run shape (subjects, days, seed, format) is logged as-is; filesystem
// paths are only recorded as present. Unknown keys are dropped, and
// "_param_count" always records how many params were provided.
func sanitizeToolParams(params map[string]interface{}) map[string]string {
	if params == nil {
		return nil
	}

	result := make(map[string]string)

	safeValueParams := map[string]bool{
		"subjects":        true,
		"days":            true,
		"seed":            true,
		"workers":         true,
		"format":          true,
		"create_dirs":     true,
		"verify_manifest": true,
	}
	presenceOnlyParams := map[string]bool{
		"output": true,
		"path":   true,
	}

	for key, val := range params {
		if safeValueParams[key] {
			result[key] = fmt.Sprintf("%v", val)
		} else if presenceOnlyParams[key] {
			result[key] = "(set)"
		}
	}

	result["_param_count"] = fmt.Sprintf("%d", len(params))

	return result
}

// auditTool logs a tool invocation. Runs that wrote under the home
// directory go to the global log; everything else is local.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string, scope string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		Scope:      scope,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
