package workspace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store persists the three workspace records plus the font-size record into
// a tiny embedded key/value table: one record per fixed key, JSON-encoded,
// backed by sqlite. Any durable key/value substrate would do; the workspace
// only sees put/get.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const (
	keyProjects = "dispatcher-projects"
	keyTerminals = "dispatcher-terminals"
	keyLayouts  = "dispatcher-layouts"
	keyFontSize = "dispatcher-font-size"
)

// OpenStore opens (creating if necessary) a sqlite-backed store at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`INSERT INTO kv(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, string(data))
	return err
}

// get reports ok=false when the key is absent, rather than an error: a fresh
// install has no persisted state, which is not a failure.
func (s *Store) get(key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var data string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// projectsRecord is the JSON shape of dispatcher-projects.
type projectsRecord struct {
	Projects        map[string]*Project  `json:"projects"`
	Nodes           map[string]*TreeNode `json:"nodes"`
	ActiveProjectID string               `json:"activeProjectId"`
	ProjectOrder    []string             `json:"projectOrder"`
}

// terminalsRecord is the JSON shape of dispatcher-terminals.
type terminalsRecord struct {
	Sessions         map[string]*TerminalSession `json:"sessions"`
	ActiveTerminalID string                      `json:"activeTerminalId"`
}

// layoutsRecord is the JSON shape of dispatcher-layouts.
type layoutsRecord struct {
	Layouts map[string]*LayoutNode `json:"layouts"`
}

// FontSizeRecord is the JSON shape of dispatcher-font-size: clamped to
// [8, 32], default 13.
type FontSizeRecord struct {
	FontSize int `json:"fontSize"`
}

const (
	minFontSize     = 8
	maxFontSize     = 32
	defaultFontSize = 13
)

// ClampFontSize enforces the [8, 32] bound.
func ClampFontSize(n int) int {
	if n < minFontSize {
		return minFontSize
	}
	if n > maxFontSize {
		return maxFontSize
	}
	return n
}

// SaveAll writes all three workspace records. It does not persist PTY state;
// PTYs do not survive restart.
func (s *Store) SaveAll(w *Workspace) error {
	w.Projects.mu.Lock()
	pr := projectsRecord{
		Projects:        cloneProjects(w.Projects.projects),
		Nodes:           cloneNodes(w.Projects.nodes),
		ActiveProjectID: w.Projects.active,
		ProjectOrder:    append([]string(nil), w.Projects.projectOrder...),
	}
	w.Projects.mu.Unlock()

	w.Terminals.mu.Lock()
	tr := terminalsRecord{
		Sessions:         cloneSessions(w.Terminals.sessions),
		ActiveTerminalID: w.Terminals.active,
	}
	w.Terminals.mu.Unlock()

	w.Layouts.mu.Lock()
	lr := layoutsRecord{Layouts: cloneLayouts(w.Layouts.layouts)}
	w.Layouts.mu.Unlock()

	if err := s.put(keyProjects, pr); err != nil {
		return err
	}
	if err := s.put(keyTerminals, tr); err != nil {
		return err
	}
	return s.put(keyLayouts, lr)
}

// LoadInto restores persisted state into a freshly constructed workspace.
// On load, absent/empty projectOrder is backfilled from projects' keys, and
// every restored session is forced to status=done, exitCode=nil (PTYs never
// survive restart), with notes defaulting to "". Must be called before any
// composite operation touches w.
func (s *Store) LoadInto(w *Workspace) error {
	var pr projectsRecord
	if ok, err := s.get(keyProjects, &pr); err != nil {
		return err
	} else if ok {
		if pr.Projects == nil {
			pr.Projects = map[string]*Project{}
		}
		if pr.Nodes == nil {
			pr.Nodes = map[string]*TreeNode{}
		}
		if len(pr.ProjectOrder) == 0 {
			for id := range pr.Projects {
				pr.ProjectOrder = append(pr.ProjectOrder, id)
			}
		}
		w.Projects.mu.Lock()
		w.Projects.projects = pr.Projects
		w.Projects.nodes = pr.Nodes
		w.Projects.active = pr.ActiveProjectID
		w.Projects.projectOrder = pr.ProjectOrder
		w.Projects.mu.Unlock()
	}

	var tr terminalsRecord
	if ok, err := s.get(keyTerminals, &tr); err != nil {
		return err
	} else if ok {
		if tr.Sessions == nil {
			tr.Sessions = map[string]*TerminalSession{}
		}
		order := make([]string, 0, len(tr.Sessions))
		for id, sess := range tr.Sessions {
			sess.Status = StatusDone
			sess.ExitCode = nil
			order = append(order, id)
		}
		w.Terminals.mu.Lock()
		w.Terminals.sessions = tr.Sessions
		w.Terminals.order = order
		w.Terminals.active = tr.ActiveTerminalID
		w.Terminals.mu.Unlock()
	}

	var lr layoutsRecord
	if ok, err := s.get(keyLayouts, &lr); err != nil {
		return err
	} else if ok {
		if lr.Layouts == nil {
			lr.Layouts = map[string]*LayoutNode{}
		}
		w.Layouts.mu.Lock()
		w.Layouts.layouts = lr.Layouts
		w.Layouts.mu.Unlock()
	}

	return nil
}

// LoadFontSize reads the persisted font size, defaulting to 13 when absent,
// and always returns a clamped value.
func (s *Store) LoadFontSize() (int, error) {
	var r FontSizeRecord
	ok, err := s.get(keyFontSize, &r)
	if err != nil {
		return defaultFontSize, err
	}
	if !ok || r.FontSize == 0 {
		return defaultFontSize, nil
	}
	return ClampFontSize(r.FontSize), nil
}

// SaveFontSize persists a clamped font size.
func (s *Store) SaveFontSize(n int) error {
	return s.put(keyFontSize, FontSizeRecord{FontSize: ClampFontSize(n)})
}

func cloneProjects(m map[string]*Project) map[string]*Project {
	out := make(map[string]*Project, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneNodes(m map[string]*TreeNode) map[string]*TreeNode {
	out := make(map[string]*TreeNode, len(m))
	for k, v := range m {
		cp := *v
		cp.Children = append([]string(nil), v.Children...)
		out[k] = &cp
	}
	return out
}

func cloneSessions(m map[string]*TerminalSession) map[string]*TerminalSession {
	out := make(map[string]*TerminalSession, len(m))
	for k, v := range m {
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneLayouts(m map[string]*LayoutNode) map[string]*LayoutNode {
	out := make(map[string]*LayoutNode, len(m))
	for k, v := range m {
		out[k] = cloneLayoutNode(v)
	}
	return out
}

func cloneLayoutNode(n *LayoutNode) *LayoutNode {
	if n == nil {
		return nil
	}
	cp := *n
	cp.First = cloneLayoutNode(n.First)
	cp.Second = cloneLayoutNode(n.Second)
	return &cp
}
