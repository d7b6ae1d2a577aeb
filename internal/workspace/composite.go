package workspace

import (
	"fmt"
	"sync"
)

// PTYEngine is the subset of internal/pty.Engine the workspace core drives.
// Defined as an interface here (rather than importing *pty.Engine directly)
// so composite operations can be tested against a fake.
type PTYEngine interface {
	Create(id string, cwd string, cols, rows uint16, sink func([]byte)) error
	Write(id string, data []byte) error
	Close(id string) error
	GetCwd(id string) (string, error)
}

// Sink receives cleaned, emulator-bound output for one terminal id.
type Sink func(terminalID string, chunk []byte)

// Workspace is the process-wide singleton tying the three stores together
// with the PTY engine: explicit construction, no hidden lazy init.
type Workspace struct {
	mu sync.Mutex

	Projects  *ProjectStore
	Terminals *TerminalStore
	Layouts   *LayoutStore

	pty  PTYEngine
	sink Sink

	lastFocused map[string]string // tab root terminalId -> last-focused pane terminalId

	// scrollback has its own lock because the writers are PTY output
	// callbacks, which must never contend with w.mu.
	scrollMu   sync.Mutex
	scrollback map[string]*ringBuffer
}

// New constructs an empty workspace bound to engine. sink receives cleaned
// output for every terminal created through the workspace.
func New(engine PTYEngine, sink Sink) *Workspace {
	return &Workspace{
		Projects:    newProjectStore(),
		Terminals:   newTerminalStore(),
		Layouts:     newLayoutStore(),
		pty:         engine,
		sink:        sink,
		lastFocused: make(map[string]string),
		scrollback:  make(map[string]*ringBuffer),
	}
}

func (w *Workspace) spawnTerminal(id, cwd string, cols, rows uint16) error {
	rb := newRingBuffer(scrollbackSize)
	w.scrollMu.Lock()
	w.scrollback[id] = rb
	w.scrollMu.Unlock()

	err := w.pty.Create(id, cwd, cols, rows, func(chunk []byte) {
		rb.write(chunk)
		if w.sink != nil {
			w.sink(id, chunk)
		}
	})
	if err != nil {
		w.dropScrollback(id)
	}
	return err
}

// Scrollback returns a copy of the output retained for a terminal, oldest
// first; nil once the terminal is gone.
func (w *Workspace) Scrollback(terminalID string) []byte {
	w.scrollMu.Lock()
	rb, ok := w.scrollback[terminalID]
	w.scrollMu.Unlock()
	if !ok {
		return nil
	}
	return rb.bytes()
}

func (w *Workspace) dropScrollback(terminalID string) {
	w.scrollMu.Lock()
	delete(w.scrollback, terminalID)
	w.scrollMu.Unlock()
}

// CreateProjectWithTerminal adds a project, its root group, one tab node, one
// session, and one layout, as a single atomic composite operation.
func (w *Workspace) CreateProjectWithTerminal(name, cwd string, cols, rows uint16) (*Project, *TreeNode, *TerminalSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	projectID := newID()
	termID := newID()

	proj, root := w.Projects.AddProject(projectID, name, cwd)
	sess := w.Terminals.AddSession(termID, "", cwd)

	node := &TreeNode{ID: newID(), Kind: NodeTerminal, ParentID: root.ID, TerminalID: termID}
	w.Projects.AddNode(node)

	w.Layouts.InitLayout(termID, termID)

	if err := w.spawnTerminal(termID, cwd, cols, rows); err != nil {
		// Spawn failed: roll back the session, layout, and tree changes this
		// operation added.
		w.Layouts.RemoveLayout(termID)
		w.Terminals.RemoveSession(termID)
		_ = w.Projects.RemoveNode(node.ID)
		w.Projects.RemoveProject(projectID)
		return nil, nil, nil, fmt.Errorf("create project with terminal: %w", err)
	}

	w.noteFocusLocked(termID)
	return proj, node, sess, nil
}

// CreateTerminalInProject adds a tab node, session, and its own layout to an
// existing project. If a sibling terminal exists, asynchronously asks the
// PTY engine for its cwd and writes a cd into the new terminal once resolved.
func (w *Workspace) CreateTerminalInProject(projectID string, cols, rows uint16) (*TreeNode, *TerminalSession, error) {
	w.mu.Lock()
	proj, ok := w.Projects.Get(projectID)
	if !ok {
		w.mu.Unlock()
		return nil, nil, ErrUnknownProject
	}
	rootGroupID := proj.RootGroupID
	root, _ := w.Projects.Node(rootGroupID)
	var siblingTerminal string
	if root != nil {
		for _, childID := range root.Children {
			if child, ok := w.Projects.Node(childID); ok && child.Kind == NodeTerminal {
				siblingTerminal = child.TerminalID
				break
			}
		}
	}

	termID := newID()
	sess := w.Terminals.AddSession(termID, "", proj.Cwd)
	node := &TreeNode{ID: newID(), Kind: NodeTerminal, ParentID: rootGroupID, TerminalID: termID}
	w.Projects.AddNode(node)
	w.Layouts.InitLayout(termID, termID)
	w.mu.Unlock()

	if err := w.spawnTerminal(termID, proj.Cwd, cols, rows); err != nil {
		w.mu.Lock()
		w.Layouts.RemoveLayout(termID)
		w.Terminals.RemoveSession(termID)
		_ = w.Projects.RemoveNode(node.ID)
		w.mu.Unlock()
		return nil, nil, fmt.Errorf("create terminal in project: %w", err)
	}

	if siblingTerminal != "" {
		go w.cdFromSibling(termID, siblingTerminal)
	}

	w.mu.Lock()
	w.noteFocusLocked(termID)
	w.mu.Unlock()
	return node, sess, nil
}

func (w *Workspace) cdFromSibling(newTerminalID, siblingTerminalID string) {
	cwd, err := w.pty.GetCwd(siblingTerminalID)
	if err != nil || cwd == "" {
		return
	}
	_ = w.pty.Write(newTerminalID, []byte(fmt.Sprintf(" cd %s && clear\n", shellQuote(cwd))))
}

// SplitPane generates a new terminal, adds a session, splits the active
// layout, and asynchronously cds into it from the source pane's cwd. No tree
// node is created; split panes live only in the session and layout stores.
func (w *Workspace) SplitPane(sourceTerminalID string, dir SplitDirection, cols, rows uint16) (*TerminalSession, error) {
	w.mu.Lock()
	key := w.Layouts.FindLayoutKeyForTerminal(sourceTerminalID)
	if key == "" {
		w.mu.Unlock()
		return nil, fmt.Errorf("split pane: %w", ErrUnknownLayout)
	}
	proj, _ := w.currentCwdForSplitLocked(sourceTerminalID)
	newTermID := newID()
	sess := w.Terminals.AddSession(newTermID, "", proj)
	w.Layouts.SplitTerminal(key, sourceTerminalID, newTermID, dir)
	w.mu.Unlock()

	if err := w.spawnTerminal(newTermID, proj, cols, rows); err != nil {
		w.mu.Lock()
		w.Layouts.RemoveTerminal(key, newTermID)
		w.Terminals.RemoveSession(newTermID)
		w.mu.Unlock()
		return nil, fmt.Errorf("split pane: %w", err)
	}

	go w.cdFromSibling(newTermID, sourceTerminalID)

	w.mu.Lock()
	w.noteFocusLocked(newTermID)
	w.mu.Unlock()
	return sess, nil
}

func (w *Workspace) currentCwdForSplitLocked(sourceTerminalID string) (string, bool) {
	if sess, ok := w.Terminals.Get(sourceTerminalID); ok {
		return sess.Cwd, true
	}
	return "", false
}

// shellQuote matches the pty package's single-quoting idiom for safe
// injection into a shell command line.
func shellQuote(s string) string {
	out := "'"
	for _, r := range s {
		if r == '\'' {
			out += `'\''`
		} else {
			out += string(r)
		}
	}
	return out + "'"
}

// ClosePane closes one pane's PTY, session, and layout leaf. Because a tab
// root's terminal id doubles as its layout key, closing the root while
// siblings remain re-keys the layout under a surviving leaf and rewrites the
// owning tree node's terminal id to match.
func (w *Workspace) ClosePane(terminalID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := w.Layouts.FindLayoutKeyForTerminal(terminalID)
	if key == "" {
		return nil
	}
	tree, _ := w.Layouts.Get(key)
	siblings := findTerminalIds(tree)
	hasSiblings := len(siblings) > 1

	wasActive := w.Terminals.ActiveTerminalID() == terminalID
	var sibling string
	if hasSiblings {
		sibling, _ = findSiblingTerminalId(tree, terminalID)
	}

	isTabRoot := key == terminalID

	w.Layouts.RemoveTerminal(key, terminalID)
	w.Terminals.RemoveSession(terminalID)
	_ = w.pty.Close(terminalID)
	w.dropScrollback(terminalID)
	w.purgeLastFocusedLocked(terminalID)

	if isTabRoot && hasSiblings {
		w.Layouts.rekey(key, sibling)
		if lf, ok := w.lastFocused[key]; ok {
			delete(w.lastFocused, key)
			w.lastFocused[sibling] = lf
		}
		if node := w.tabNodeForLayoutKeyLocked(key); node != nil {
			node.TerminalID = sibling
		}
	} else if !hasSiblings {
		// Layout already deleted by RemoveTerminal; delete the tab node too.
		if node := w.tabNodeForLayoutKeyLocked(key); node != nil {
			_ = w.Projects.RemoveNode(node.ID)
		}
	}

	if wasActive && sibling != "" {
		_ = w.Terminals.SetActiveTerminal(sibling)
	}

	w.deleteProjectIfEmptyLocked()
	return nil
}

// tabNodeForLayoutKeyLocked finds the tree-terminal node whose TerminalID
// equals key, across all projects. Must be called with w.mu held.
func (w *Workspace) tabNodeForLayoutKeyLocked(key string) *TreeNode {
	w.Projects.mu.Lock()
	defer w.Projects.mu.Unlock()
	for _, n := range w.Projects.nodes {
		if n.Kind == NodeTerminal && n.TerminalID == key {
			return n
		}
	}
	return nil
}

// deleteProjectIfEmptyLocked removes any project whose root group has no
// children left; a project with no tabs does not survive.
func (w *Workspace) deleteProjectIfEmptyLocked() {
	w.Projects.mu.Lock()
	var empty []string
	for id, p := range w.Projects.projects {
		if root, ok := w.Projects.nodes[p.RootGroupID]; ok && len(root.Children) == 0 {
			empty = append(empty, id)
		}
	}
	w.Projects.mu.Unlock()
	for _, id := range empty {
		w.Projects.RemoveProject(id)
	}
}

// DeleteTab closes every terminal in a tab's layout and removes its tree
// node.
func (w *Workspace) DeleteTab(tabNodeID string) error {
	w.mu.Lock()
	node, ok := w.Projects.Node(tabNodeID)
	if !ok || node.Kind != NodeTerminal {
		w.mu.Unlock()
		return ErrUnknownNode
	}
	key := node.TerminalID
	tree, _ := w.Layouts.Get(key)
	ids := findTerminalIds(tree)
	w.mu.Unlock()

	for _, id := range ids {
		_ = w.pty.Close(id)
		w.dropScrollback(id)
		w.mu.Lock()
		w.Terminals.RemoveSession(id)
		w.purgeLastFocusedLocked(id)
		w.mu.Unlock()
	}

	w.mu.Lock()
	w.Layouts.RemoveLayout(key)
	err := w.Projects.RemoveNode(tabNodeID)
	w.deleteProjectIfEmptyLocked()
	w.mu.Unlock()
	return err
}

// DeleteProject closes every terminal in every tab, removes every tree node,
// and removes the project.
func (w *Workspace) DeleteProject(projectID string) error {
	w.mu.Lock()
	proj, ok := w.Projects.Get(projectID)
	if !ok {
		w.mu.Unlock()
		return ErrUnknownProject
	}
	root, _ := w.Projects.Node(proj.RootGroupID)
	var tabNodeIDs []string
	if root != nil {
		tabNodeIDs = append(tabNodeIDs, root.Children...)
	}
	w.mu.Unlock()

	for _, tabNodeID := range tabNodeIDs {
		_ = w.DeleteTab(tabNodeID)
	}

	w.mu.Lock()
	w.Projects.RemoveProject(projectID)
	w.mu.Unlock()
	return nil
}

// MoveTerminalBetweenProjects moves only the tab's tree node; the session and
// layout are untouched, since the layout is keyed by terminalId, not project.
func (w *Workspace) MoveTerminalBetweenProjects(tabNodeID, destProjectID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	dest, ok := w.Projects.Get(destProjectID)
	if !ok {
		return ErrUnknownProject
	}
	return w.Projects.MoveNode(tabNodeID, dest.RootGroupID)
}
