package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/protomech/internal/explorer"
	"github.com/nvandessel/protomech/internal/logging"
	"github.com/nvandessel/protomech/internal/pathutil"
	"github.com/nvandessel/protomech/internal/ratelimit"
)

// Server wraps the MCP SDK server and exposes an explorer session as tools.
type Server struct {
	server       *sdk.Server
	session      *explorer.Session
	toolLimiters ratelimit.ToolLimiters
	audit        *AuditLogger
	exportDirs   pathutil.ExportDirs
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "protomech")
	Version string // Server version

	// Session is the explorer the tools operate on. Required.
	Session *explorer.Session

	// StateDir receives the tool audit log. Empty disables auditing.
	StateDir string

	// ExportDirs bounds where protomech_export may write. Nil means
	// ~/.protomech/exports and the dataset's exports directory.
	ExportDirs []string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with protomech tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil || cfg.Session == nil {
		return nil, errors.New("mcp: config needs an explorer session")
	}

	exportDirs := pathutil.ExportDirs(cfg.ExportDirs)
	if exportDirs == nil {
		dirs, err := pathutil.DefaultExportDirs(cfg.Session.Dir())
		if err != nil {
			return nil, fmt.Errorf("failed to determine export dirs: %w", err)
		}
		exportDirs = dirs
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			// Client initialized, ready to serve
		},
	})

	logger := logging.OrDefault(cfg.Logger)
	s := &Server{
		server:       mcpServer,
		session:      cfg.Session,
		toolLimiters: ratelimit.NewToolLimiters(),
		audit:        NewAuditLogger(cfg.StateDir, logger),
		exportDirs:   exportDirs,
		logger:       logger,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	s.logger.Info("mcp server starting", "dataset", pathutil.RedactPath(s.session.Dir()))
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases the audit log. The session belongs to the caller.
func (s *Server) Close() error {
	return s.audit.Close()
}
