package workspace

import (
	"fmt"
	"sync"
)

var (
	ErrUnknownProject = fmt.Errorf("workspace: unknown project id")
	ErrUnknownNode    = fmt.Errorf("workspace: unknown tree node id")
)

// ProjectStore holds the projects, their sidebar tree nodes, the active
// project id, and the sidebar ordering.
type ProjectStore struct {
	mu           sync.Mutex
	projects     map[string]*Project
	nodes        map[string]*TreeNode
	active       string
	projectOrder []string
}

func newProjectStore() *ProjectStore {
	return &ProjectStore{
		projects: make(map[string]*Project),
		nodes:    make(map[string]*TreeNode),
	}
}

// AddProject creates a project with an empty root group; if no project was
// previously active, the new one becomes active.
func (s *ProjectStore) AddProject(id, name, cwd string) (*Project, *TreeNode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rootID := newID()
	root := &TreeNode{ID: rootID, Kind: NodeGroup, Name: "root"}
	s.nodes[rootID] = root

	p := &Project{ID: id, Name: name, Cwd: cwd, RootGroupID: rootID, Expanded: true}
	s.projects[id] = p
	s.projectOrder = append(s.projectOrder, id)
	if s.active == "" {
		s.active = id
	}
	return p, root
}

// RemoveProject deletes a project and its tree nodes. Active project falls
// back to the first remaining, else empty.
func (s *ProjectStore) RemoveProject(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return
	}
	s.removeNodeTreeLocked(p.RootGroupID)
	delete(s.projects, id)
	for i, pid := range s.projectOrder {
		if pid == id {
			s.projectOrder = append(s.projectOrder[:i], s.projectOrder[i+1:]...)
			break
		}
	}
	if s.active == id {
		if len(s.projectOrder) > 0 {
			s.active = s.projectOrder[0]
		} else {
			s.active = ""
		}
	}
}

func (s *ProjectStore) removeNodeTreeLocked(id string) {
	n, ok := s.nodes[id]
	if !ok {
		return
	}
	for _, c := range n.Children {
		s.removeNodeTreeLocked(c)
	}
	delete(s.nodes, id)
}

func (s *ProjectStore) Get(id string) (*Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	return p, ok
}

func (s *ProjectStore) Node(id string) (*TreeNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	return n, ok
}

func (s *ProjectStore) ActiveProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *ProjectStore) ProjectOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.projectOrder))
	copy(out, s.projectOrder)
	return out
}

func (s *ProjectStore) RenameProject(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return ErrUnknownProject
	}
	p.Name = name
	return nil
}

func (s *ProjectStore) SetActiveProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, ok := s.projects[id]; !ok {
			return ErrUnknownProject
		}
	}
	s.active = id
	return nil
}

func (s *ProjectStore) ToggleProjectExpanded(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return ErrUnknownProject
	}
	p.Expanded = !p.Expanded
	return nil
}

// ReorderProject moves id to just before/after target in projectOrder; a
// no-op if id == target.
func (s *ProjectStore) ReorderProject(id, target string, after bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == target {
		return nil
	}
	idx := indexOf(s.projectOrder, id)
	tgt := indexOf(s.projectOrder, target)
	if idx < 0 || tgt < 0 {
		return ErrUnknownProject
	}
	order := append(s.projectOrder[:idx], s.projectOrder[idx+1:]...)
	tgt = indexOf(order, target)
	insertAt := tgt
	if after {
		insertAt = tgt + 1
	}
	order = append(order[:insertAt], append([]string{id}, order[insertAt:]...)...)
	s.projectOrder = order
	return nil
}

// AddNode inserts a node and appends it to parent's children.
func (s *ProjectStore) AddNode(n *TreeNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	if parent, ok := s.nodes[n.ParentID]; ok {
		s.addChildLocked(parent, n.ID)
	}
}

// RemoveNode detaches id from its parent's children and deletes it (non-
// recursive; callers that need to remove a subtree call this per-node).
func (s *ProjectStore) RemoveNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	if parent, ok := s.nodes[n.ParentID]; ok {
		s.removeChildLocked(parent, id)
	}
	delete(s.nodes, id)
	return nil
}

// AddChildToNode is idempotent: adding an already-present child is a no-op.
func (s *ProjectStore) AddChildToNode(parentID, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.nodes[parentID]
	if !ok {
		return ErrUnknownNode
	}
	s.addChildLocked(parent, childID)
	return nil
}

func (s *ProjectStore) addChildLocked(parent *TreeNode, childID string) {
	if indexOf(parent.Children, childID) >= 0 {
		return
	}
	parent.Children = append(parent.Children, childID)
}

// ReorderChild moves childID to just before/after targetChildID within
// parentID's children; a no-op if childID == targetChildID.
func (s *ProjectStore) ReorderChild(parentID, childID, targetChildID string, after bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if childID == targetChildID {
		return nil
	}
	parent, ok := s.nodes[parentID]
	if !ok {
		return ErrUnknownNode
	}
	idx := indexOf(parent.Children, childID)
	tgt := indexOf(parent.Children, targetChildID)
	if idx < 0 || tgt < 0 {
		return ErrUnknownNode
	}
	children := append(parent.Children[:idx], parent.Children[idx+1:]...)
	tgt = indexOf(children, targetChildID)
	insertAt := tgt
	if after {
		insertAt = tgt + 1
	}
	children = append(children[:insertAt], append([]string{childID}, children[insertAt:]...)...)
	parent.Children = children
	return nil
}

func (s *ProjectStore) RemoveChildFromNode(parentID, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.nodes[parentID]
	if !ok {
		return ErrUnknownNode
	}
	s.removeChildLocked(parent, childID)
	return nil
}

func (s *ProjectStore) removeChildLocked(parent *TreeNode, childID string) {
	for i, c := range parent.Children {
		if c == childID {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return
		}
	}
}

// MoveNode detaches id from its current parent's children, appends it under
// newParentID, and updates its ParentID, atomically.
func (s *ProjectStore) MoveNode(id, newParentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	newParent, ok := s.nodes[newParentID]
	if !ok {
		return ErrUnknownNode
	}
	if oldParent, ok := s.nodes[n.ParentID]; ok {
		s.removeChildLocked(oldParent, id)
	}
	s.addChildLocked(newParent, id)
	n.ParentID = newParentID
	return nil
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}
