package workspace

// tabEntry is one flattened cross-project cycling entry: a tab (tree-terminal
// node) together with the project that owns it.
type tabEntry struct {
	projectID  string
	terminalID string // the tab root terminal id
}

// buildTabEntries flattens projectOrder into tab entries: for each expanded
// project, its root-group children that are tree-terminals whose terminalId
// still identifies a live session.
func (w *Workspace) buildTabEntries() []tabEntry {
	w.Projects.mu.Lock()
	defer w.Projects.mu.Unlock()

	var entries []tabEntry
	for _, pid := range w.Projects.projectOrder {
		proj, ok := w.Projects.projects[pid]
		if !ok || !proj.Expanded {
			continue
		}
		root, ok := w.Projects.nodes[proj.RootGroupID]
		if !ok {
			continue
		}
		for _, childID := range root.Children {
			child, ok := w.Projects.nodes[childID]
			if !ok || child.Kind != NodeTerminal {
				continue
			}
			if !w.Terminals.Exists(child.TerminalID) {
				continue
			}
			entries = append(entries, tabEntry{projectID: pid, terminalID: child.TerminalID})
		}
	}
	return entries
}

// currentTabIndex resolves the index of the active tab within entries: direct
// match first, else the tab root of the active terminal's layout, else -1.
func (w *Workspace) currentTabIndex(entries []tabEntry) int {
	active := w.Terminals.ActiveTerminalID()
	if active == "" {
		return -1
	}
	for i, e := range entries {
		if e.terminalID == active {
			return i
		}
	}
	if tabRoot := w.Layouts.FindLayoutKeyForTerminal(active); tabRoot != "" {
		for i, e := range entries {
			if e.terminalID == tabRoot {
				return i
			}
		}
	}
	return -1
}

// CycleForward moves the active project/terminal to the next tab across all
// expanded projects. A no-op with fewer than 2 tabs.
func (w *Workspace) CycleForward() {
	w.cycle(1)
}

// CycleBackward is CycleForward's symmetric counterpart.
func (w *Workspace) CycleBackward() {
	w.cycle(-1)
}

func (w *Workspace) cycle(delta int) {
	entries := w.buildTabEntries()
	n := len(entries)
	if n < 2 {
		return
	}

	current := w.currentTabIndex(entries)
	var next int
	if current == -1 {
		next = 0
	} else {
		next = ((current+delta)%n + n) % n
	}

	dest := entries[next]
	w.setActiveAfterCycle(dest.projectID, dest.terminalID)
}

// setActiveAfterCycle sets both activeProjectId and activeTerminalId to the
// destination tab, restoring the last-focused pane within that tab if one is
// recorded.
func (w *Workspace) setActiveAfterCycle(projectID, tabRootTerminalID string) {
	w.mu.Lock()
	target := tabRootTerminalID
	if lf, ok := w.lastFocused[tabRootTerminalID]; ok {
		target = lf
	}
	w.mu.Unlock()

	_ = w.Projects.SetActiveProject(projectID)
	_ = w.Terminals.SetActiveTerminal(target)

	w.mu.Lock()
	w.noteFocusLocked(target)
	w.mu.Unlock()
}

// SetActiveTerminal sets the active terminal and records it as the
// last-focused pane of its owning tab. Use this (rather than
// w.Terminals.SetActiveTerminal directly) for any focus change driven by the
// UI so cross-project cycling can later restore split-pane focus.
func (w *Workspace) SetActiveTerminal(id string) error {
	if err := w.Terminals.SetActiveTerminal(id); err != nil {
		return err
	}
	if id != "" {
		w.mu.Lock()
		w.noteFocusLocked(id)
		w.mu.Unlock()
	}
	return nil
}

// SetActiveProject sets the active project.
func (w *Workspace) SetActiveProject(id string) error {
	return w.Projects.SetActiveProject(id)
}

// noteFocusLocked records id as the last-focused pane of its tab root, if it
// resolves to one. Must be called with w.mu held.
func (w *Workspace) noteFocusLocked(id string) {
	tabRoot := w.Layouts.FindLayoutKeyForTerminal(id)
	if tabRoot != "" {
		w.lastFocused[tabRoot] = id
	}
}

// purgeLastFocusedLocked removes any lastFocused entries pointing at
// closedID. Left behind, such an entry makes a later cycle restore focus to a
// pane whose session no longer exists. Must be called with w.mu held.
func (w *Workspace) purgeLastFocusedLocked(closedID string) {
	for k, v := range w.lastFocused {
		if v == closedID {
			delete(w.lastFocused, k)
		}
	}
}
