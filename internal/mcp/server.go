package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/lifesim/internal/archetype"
	"github.com/nvandessel/lifesim/internal/config"
	"github.com/nvandessel/lifesim/internal/ratelimit"
)

// Server wraps the MCP SDK server and exposes dataset generation tools.
type Server struct {
	server       *sdk.Server
	root         string
	home         string
	version      string
	settings     *config.LifesimConfig
	catalog      archetype.Catalog
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "lifesim")
	Version string // Server version
	Root    string // Project root directory

	// Settings seeds every generate call; tool arguments override it.
	// Defaults to config.Default().
	Settings *config.LifesimConfig

	Logger *slog.Logger
}

// NewServer creates a new MCP server with lifesim tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("project root is required")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		root:         cfg.Root,
		home:         home,
		version:      cfg.Version,
		settings:     settings,
		catalog:      archetype.Default(),
		logger:       logger,
		auditLogger:  NewAuditLogger(cfg.Root, home),
		toolLimiters: ratelimit.NewToolLimiters(),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, shutdownSignals...)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.auditLogger.Close()

	return err
}

// Close releases the audit log files.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
