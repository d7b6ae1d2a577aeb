// Package mcpserver exposes a narrow MCP tool surface over the workspace so
// an AI coding assistant can drive the same projects/tabs/panes a human uses
// instead of special-casing agent sessions.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/TheBuilderJR/dispatcher/internal/pty"
	"github.com/TheBuilderJR/dispatcher/internal/workspace"
)

// Server wraps an MCP server bound to one workspace/engine pair.
type Server struct {
	mcp    *server.MCPServer
	ws     *workspace.Workspace
	engine *pty.Engine
	logger *slog.Logger
}

// New builds (but does not start) the MCP tool surface: list_projects,
// list_terminals, create_terminal, write_terminal, read_scrollback,
// get_terminal_state, close_pane.
func New(ws *workspace.Workspace, engine *pty.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ws:     ws,
		engine: engine,
		logger: logger,
		mcp:    server.NewMCPServer("dispatcher", "1.0.0"),
	}
	s.registerTools()
	return s
}

// ServeStdio runs the MCP server over stdin/stdout and blocks until it stops.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List all projects and their tabs in the workspace"),
	), s.handleListProjects)

	s.mcp.AddTool(mcp.NewTool("list_terminals",
		mcp.WithDescription("List all live terminal sessions and their run-state"),
	), s.handleListTerminals)

	s.mcp.AddTool(mcp.NewTool("create_terminal",
		mcp.WithDescription("Create a new terminal tab in a project"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("project to add the tab to")),
	), s.handleCreateTerminal)

	s.mcp.AddTool(mcp.NewTool("write_terminal",
		mcp.WithDescription("Write raw bytes (as a UTF-8 string) to a terminal's PTY"),
		mcp.WithString("terminal_id", mcp.Required(), mcp.Description("target terminal id")),
		mcp.WithString("data", mcp.Required(), mcp.Description("bytes to write, UTF-8")),
	), s.handleWriteTerminal)

	s.mcp.AddTool(mcp.NewTool("read_scrollback",
		mcp.WithDescription("Read a terminal's retained output (scrollback), oldest first"),
		mcp.WithString("terminal_id", mcp.Required(), mcp.Description("target terminal id")),
		mcp.WithNumber("max_bytes", mcp.Description("return at most this many trailing bytes (0 = all retained)")),
	), s.handleReadScrollback)

	s.mcp.AddTool(mcp.NewTool("get_terminal_state",
		mcp.WithDescription("Read a terminal's run-state and current working directory"),
		mcp.WithString("terminal_id", mcp.Required(), mcp.Description("target terminal id")),
	), s.handleGetTerminalState)

	s.mcp.AddTool(mcp.NewTool("close_pane",
		mcp.WithDescription("Close a terminal pane (and its PTY)"),
		mcp.WithString("terminal_id", mcp.Required(), mcp.Description("target terminal id")),
	), s.handleClosePane)
}

func stringArg(request mcp.CallToolRequest, name string) (string, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return "", fmt.Errorf("missing arguments")
	}
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing argument %q", name)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", name)
	}
	return str, nil
}

// intArg reads an optional numeric argument, 0 when absent or malformed.
func intArg(request mcp.CallToolRequest, name string) int {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return 0
	}
	n, ok := args[name].(float64)
	if !ok {
		return 0
	}
	return int(n)
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	order := s.ws.Projects.ProjectOrder()
	out := make([]map[string]any, 0, len(order))
	for _, id := range order {
		proj, ok := s.ws.Projects.Get(id)
		if !ok {
			continue
		}
		root, _ := s.ws.Projects.Node(proj.RootGroupID)
		var tabs []string
		if root != nil {
			tabs = root.Children
		}
		out = append(out, map[string]any{
			"id":       proj.ID,
			"name":     proj.Name,
			"cwd":      proj.Cwd,
			"expanded": proj.Expanded,
			"tabs":     tabs,
		})
	}
	return mcp.NewToolResultText(fmt.Sprintf("%v", out)), nil
}

func (s *Server) handleListTerminals(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot := s.ws.Terminals.Snapshot()
	out := make([]map[string]any, 0, len(snapshot))
	for id, sess := range snapshot {
		out = append(out, map[string]any{
			"id":     id,
			"title":  sess.Title,
			"status": sess.Status,
			"cwd":    sess.Cwd,
		})
	}
	return mcp.NewToolResultText(fmt.Sprintf("%v", out)), nil
}

func (s *Server) handleCreateTerminal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := stringArg(request, "project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	node, sess, err := s.ws.CreateTerminalInProject(projectID, 80, 24)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created terminal %s (tab node %s)", sess.ID, node.ID)), nil
}

func (s *Server) handleWriteTerminal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	terminalID, err := stringArg(request, "terminal_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := stringArg(request, "data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.engine.Write(terminalID, []byte(data)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (s *Server) handleReadScrollback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	terminalID, err := stringArg(request, "terminal_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, ok := s.ws.Terminals.Get(terminalID); !ok {
		return mcp.NewToolResultError("unknown terminal id"), nil
	}
	data := s.ws.Scrollback(terminalID)
	if max := intArg(request, "max_bytes"); max > 0 && len(data) > max {
		data = data[len(data)-max:]
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetTerminalState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	terminalID, err := stringArg(request, "terminal_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, ok := s.ws.Terminals.Get(terminalID)
	if !ok {
		return mcp.NewToolResultError("unknown terminal id"), nil
	}
	cwd, _ := s.engine.GetCwd(terminalID)
	return mcp.NewToolResultText(fmt.Sprintf("status=%s cwd=%s", sess.Status, cwd)), nil
}

func (s *Server) handleClosePane(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	terminalID, err := stringArg(request, "terminal_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ws.ClosePane(terminalID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("closed"), nil
}
