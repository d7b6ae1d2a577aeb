package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/TheBuilderJR/dispatcher/internal/notify"
	"github.com/TheBuilderJR/dispatcher/internal/pty"
	"github.com/TheBuilderJR/dispatcher/internal/workspace"
)

// Server is the HTTP+WebSocket front end over the workspace core: a route
// table plus writeJSONResponse/writeError helpers, wired to
// workspace+pty+shellintegration+notify.
type Server struct {
	ws        *workspace.Workspace
	engine    *pty.Engine
	adapter   *ptyAdapter
	store     *workspace.Store
	notify    *notify.Manager
	broker    *broker
	scheduler *workspace.Scheduler
	logger    *slog.Logger
	httpSrv   *http.Server
	version   string
}

// Config omits the dev-proxy/static-file fields a GUI front end would need;
// the GUI lives in a separate process and talks to this API.
type Config struct {
	Addr          string
	Logger        *slog.Logger
	Version       string
	StorePath     string
	NotifyManager *notify.Manager
}

// New constructs the server and the workspace/pty/shellintegration/store
// stack beneath it, restoring any persisted state.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := workspace.OpenStore(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	engine := pty.NewEngine(logger)
	br := newBroker()
	adapter := newPTYAdapter(engine, cfg.NotifyManager, logger)

	ws := workspace.New(adapter, func(terminalID string, chunk []byte) {
		br.publish(terminalID, chunk)
	})
	adapter.SetWorkspace(ws)

	if err := store.LoadInto(ws); err != nil {
		logger.Warn("failed to load persisted workspace state", "err", err)
	}

	engine.WarmPool(2)

	scheduler := workspace.NewScheduler(logger)
	if err := scheduler.AddPersistenceFlush("@every 30s", ws, store); err != nil {
		logger.Warn("failed to register persistence flush job", "err", err)
	}
	if err := scheduler.AddWarmPoolTopUp("@every 1m", func() { engine.WarmPool(2) }); err != nil {
		logger.Warn("failed to register warm pool top-up job", "err", err)
	}
	scheduler.Start()

	s := &Server{
		ws:        ws,
		engine:    engine,
		adapter:   adapter,
		store:     store,
		notify:    cfg.NotifyManager,
		broker:    br,
		scheduler: scheduler,
		logger:    logger,
		version:   cfg.Version,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/info", s.handleInfo)

	mux.HandleFunc("GET /api/v1/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/v1/projects", s.handleCreateProject)
	mux.HandleFunc("DELETE /api/v1/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("PATCH /api/v1/projects/{id}", s.handlePatchProject)
	mux.HandleFunc("POST /api/v1/projects/{id}/terminals", s.handleCreateTerminalInProject)

	mux.HandleFunc("GET /api/v1/terminals", s.handleListTerminals)
	mux.HandleFunc("PATCH /api/v1/terminals/{id}", s.handlePatchTerminal)
	mux.HandleFunc("POST /api/v1/terminals/{id}/split", s.handleSplitPane)
	mux.HandleFunc("DELETE /api/v1/terminals/{id}", s.handleClosePane)
	mux.HandleFunc("POST /api/v1/terminals/{id}/activate", s.handleActivateTerminal)
	mux.HandleFunc("GET /api/v1/terminals/{id}/cwd", s.handleGetTerminalCwd)

	mux.HandleFunc("POST /api/v1/pty/warm-pool", s.handleWarmPool)

	mux.HandleFunc("DELETE /api/v1/tabs/{id}", s.handleDeleteTab)
	mux.HandleFunc("POST /api/v1/tabs/{id}/move", s.handleMoveTerminal)
	mux.HandleFunc("GET /api/v1/layouts/{key}", s.handleGetLayout)
	mux.HandleFunc("POST /api/v1/layouts/{key}/ratio", s.handleSetRatio)
	mux.HandleFunc("POST /api/v1/nodes/{id}/reorder-child", s.handleReorderChild)

	mux.HandleFunc("POST /api/v1/cycle", s.handleCycle)

	mux.HandleFunc("GET /api/v1/font-size", s.handleGetFontSize)
	mux.HandleFunc("PUT /api/v1/font-size", s.handleSetFontSize)
	mux.HandleFunc("POST /api/v1/font-size/reset", s.handleResetFontSize)

	mux.HandleFunc("GET /api/v1/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/v1/push/vapid", s.handleVAPIDKey)
	mux.HandleFunc("POST /api/v1/push/subscribe", s.handlePushSubscribe)
	mux.HandleFunc("POST /api/v1/push/unsubscribe", s.handlePushUnsubscribe)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server started", "addr", ln.Addr().String())
	return s.httpSrv.Serve(ln)
}

func (s *Server) SetTLSConfig(tlsCfg *tls.Config) {
	s.httpSrv.TLSConfig = tlsCfg
}

func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Workspace exposes the workspace core for out-of-process surfaces such as
// the MCP tool server, which is constructed alongside but outside of Server.
func (s *Server) Workspace() *workspace.Workspace {
	return s.ws
}

// Engine exposes the PTY engine for the same reason as Workspace.
func (s *Server) Engine() *pty.Engine {
	return s.engine
}

// Shutdown flushes workspace state, tears down every PTY, and stops the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down...")
	s.scheduler.Stop()
	s.engine.Shutdown()
	if err := s.store.SaveAll(s.ws); err != nil {
		s.logger.Warn("final save failed", "err", err)
	}
	_ = s.store.Close()
	return s.httpSrv.Shutdown(ctx)
}

// --- Info ---

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{"version": s.version})
}

// --- Projects ---

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	order := s.ws.Projects.ProjectOrder()
	projects := make([]map[string]any, 0, len(order))
	for _, id := range order {
		p, ok := s.ws.Projects.Get(id)
		if !ok {
			continue
		}
		root, _ := s.ws.Projects.Node(p.RootGroupID)
		var tabs []string
		if root != nil {
			tabs = root.Children
		}
		projects = append(projects, map[string]any{
			"id": p.ID, "name": p.Name, "cwd": p.Cwd,
			"expanded": p.Expanded, "rootGroupId": p.RootGroupID, "tabs": tabs,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"projects":        projects,
		"activeProjectId": s.ws.Projects.ActiveProjectID(),
		"projectOrder":    order,
	})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Cwd  string `json:"cwd"`
		Cols uint16 `json:"cols"`
		Rows uint16 `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	proj, node, sess, err := s.ws.CreateProjectWithTerminal(req.Name, req.Cwd, req.Cols, req.Rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"project": proj, "tabNode": node.ID, "terminalId": sess.ID,
	})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.ws.DeleteProject(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePatchProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Name           *string `json:"name"`
		ToggleExpanded bool    `json:"toggleExpanded"`
		Active         bool    `json:"active"`
		ReorderTarget  *string `json:"reorderTarget"`
		ReorderAfter   bool    `json:"reorderAfter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Name != nil {
		if err := s.ws.Projects.RenameProject(id, *req.Name); err != nil {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
	}
	if req.ToggleExpanded {
		if err := s.ws.Projects.ToggleProjectExpanded(id); err != nil {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
	}
	if req.Active {
		if err := s.ws.SetActiveProject(id); err != nil {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
	}
	if req.ReorderTarget != nil {
		if err := s.ws.Projects.ReorderProject(id, *req.ReorderTarget, req.ReorderAfter); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCreateTerminalInProject(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	var req struct {
		Cols uint16 `json:"cols"`
		Rows uint16 `json:"rows"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	node, sess, err := s.ws.CreateTerminalInProject(projectID, req.Cols, req.Rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"tabNode": node.ID, "terminalId": sess.ID})
}

// --- Terminals / panes ---

func (s *Server) handleListTerminals(w http.ResponseWriter, r *http.Request) {
	snapshot := s.ws.Terminals.Snapshot()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"sessions":         snapshot,
		"activeTerminalId": s.ws.Terminals.ActiveTerminalID(),
	})
}

func (s *Server) handleSplitPane(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("id")
	var req struct {
		Direction string `json:"direction"`
		Cols      uint16 `json:"cols"`
		Rows      uint16 `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	dir := workspace.Horizontal
	if req.Direction == string(workspace.Vertical) {
		dir = workspace.Vertical
	}
	sess, err := s.ws.SplitPane(sourceID, dir, req.Cols, req.Rows)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, sess)
}

func (s *Server) handleClosePane(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.broker.closeAll(id)
	if err := s.ws.ClosePane(id); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePatchTerminal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Title *string `json:"title"`
		Notes *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Title != nil {
		if err := s.ws.Terminals.UpdateTitle(id, *req.Title); err != nil {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
	}
	if req.Notes != nil {
		if err := s.ws.Terminals.UpdateNotes(id, *req.Notes); err != nil {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleGetTerminalCwd answers "what directory is this PTY in" best-effort;
// cwd comes back null when introspection is unavailable.
func (s *Server) handleGetTerminalCwd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cwd, err := s.adapter.GetCwd(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	var out *string
	if cwd != "" {
		out = &cwd
	}
	writeJSONResponse(w, http.StatusOK, map[string]*string{"cwd": out})
}

func (s *Server) handleWarmPool(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	s.engine.WarmPool(req.Count)
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleActivateTerminal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.ws.SetActiveTerminal(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteTab(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.ws.DeleteTab(id); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleReorderChild reorders a tab within its parent group node (the
// sidebar drag-to-reorder affordance).
func (s *Server) handleReorderChild(w http.ResponseWriter, r *http.Request) {
	parentID := r.PathValue("id")
	var req struct {
		ChildID       string `json:"childId"`
		TargetChildID string `json:"targetChildId"`
		After         bool   `json:"after"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if err := s.ws.Projects.ReorderChild(parentID, req.ChildID, req.TargetChildID, req.After); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMoveTerminal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		DestProjectID string `json:"destProjectId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if err := s.ws.MoveTerminalBetweenProjects(id, req.DestProjectID); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Layouts ---

// handleGetLayout returns the split tree for a tab, keyed by its layout key
// (the tab root terminal id).
func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	tree, ok := s.ws.Layouts.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown layout key: "+key)
		return
	}
	writeJSONResponse(w, http.StatusOK, tree)
}

// handleSetRatio adjusts a split node's ratio, clamped to [0.1, 0.9].
func (s *Server) handleSetRatio(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req struct {
		SplitNodeID string  `json:"splitNodeId"`
		Ratio       float64 `json:"ratio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	s.ws.Layouts.SetRatio(key, req.SplitNodeID, req.Ratio)
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Cycling ---

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Direction == "backward" {
		s.ws.CycleBackward()
	} else {
		s.ws.CycleForward()
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"activeProjectId":  s.ws.Projects.ActiveProjectID(),
		"activeTerminalId": s.ws.Terminals.ActiveTerminalID(),
	})
}

// --- Font size ---

func (s *Server) handleGetFontSize(w http.ResponseWriter, r *http.Request) {
	size, err := s.store.LoadFontSize()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"fontSize": size})
}

func (s *Server) handleSetFontSize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FontSize int `json:"fontSize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	clamped := workspace.ClampFontSize(req.FontSize)
	if err := s.store.SaveFontSize(clamped); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"fontSize": clamped})
}

func (s *Server) handleResetFontSize(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SaveFontSize(13); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"fontSize": 13})
}

// --- Web Push ---

func (s *Server) handleVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if s.notify == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "push notifications not configured")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"publicKey": s.notify.VAPIDPublicKey()})
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	if s.notify == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "push notifications not configured")
		return
	}
	var sub webpush.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid subscription")
		return
	}
	s.notify.Subscribe(&sub)
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if s.notify == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "push notifications not configured")
		return
	}
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request")
		return
	}
	s.notify.Unsubscribe(req.Endpoint)
	writeJSONResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- Helpers ---

func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSONResponse(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

