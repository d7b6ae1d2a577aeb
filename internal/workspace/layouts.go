package workspace

import (
	"fmt"
	"sync"
)

var ErrUnknownLayout = fmt.Errorf("workspace: unknown layout key")

// LayoutStore holds each tab's split tree, keyed by the tab root's terminal
// id. Each tree is owned by the map entry it's keyed under and never
// referenced by any other key.
type LayoutStore struct {
	mu      sync.Mutex
	layouts map[string]*LayoutNode
}

func newLayoutStore() *LayoutStore {
	return &LayoutStore{layouts: make(map[string]*LayoutNode)}
}

// InitLayout creates a single-leaf layout where the key and sole leaf share
// terminalId.
func (s *LayoutStore) InitLayout(key, terminalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts[key] = newLeaf(newID(), terminalID)
}

func (s *LayoutStore) Get(key string) (*LayoutNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.layouts[key]
	return n, ok
}

func (s *LayoutStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.layouts))
	for k := range s.layouts {
		out = append(out, k)
	}
	return out
}

func (s *LayoutStore) RemoveLayout(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layouts, key)
}

// rekey moves a layout tree from oldKey to newKey (used by Workspace.ClosePane when a
// tab root closes but siblings survive).
func (s *LayoutStore) rekey(oldKey, newKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tree, ok := s.layouts[oldKey]
	if !ok {
		return
	}
	delete(s.layouts, oldKey)
	s.layouts[newKey] = tree
}

// SplitTerminal splits the leaf holding targetTerminalID into a split node
// whose first child is the original leaf and second is a fresh leaf for
// newTerminalID. A no-op if key is missing or target isn't found.
func (s *LayoutStore) SplitTerminal(key, targetTerminalID, newTerminalID string, dir SplitDirection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, ok := s.layouts[key]
	if !ok {
		return
	}
	s.layouts[key] = splitAtTerminal(root, targetTerminalID, newTerminalID, dir)
}

// splitAtTerminal returns a new tree with target's leaf replaced by a split
// whose children are {target-leaf, new-leaf}. A pure function so tests can
// check it directly against findTerminalIds.
func splitAtTerminal(root *LayoutNode, target, newTerminalID string, dir SplitDirection) *LayoutNode {
	if root == nil {
		return nil
	}
	if root.IsLeaf {
		if root.TerminalID != target {
			return root
		}
		return &LayoutNode{
			NodeID:    newID(),
			Direction: dir,
			Ratio:     0.5,
			First:     root,
			Second:    newLeaf(newID(), newTerminalID),
		}
	}
	return &LayoutNode{
		NodeID:    root.NodeID,
		Direction: root.Direction,
		Ratio:     root.Ratio,
		First:     splitAtTerminal(root.First, target, newTerminalID, dir),
		Second:    splitAtTerminal(root.Second, target, newTerminalID, dir),
	}
}

// RemoveTerminal removes the leaf for terminalID, collapsing the split whose
// only surviving child held it (its sibling replaces the split in the
// parent), and deletes the layout entry entirely once the tree is empty —
// an empty layout tree is never left behind.
func (s *LayoutStore) RemoveTerminal(key, terminalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, ok := s.layouts[key]
	if !ok {
		return
	}
	newRoot, removed := removeFromTree(root, terminalID)
	if !removed {
		return
	}
	if newRoot == nil {
		delete(s.layouts, key)
		return
	}
	s.layouts[key] = newRoot
}

// removeFromTree returns the new subtree with terminalID's leaf removed, and
// whether anything was removed. A split whose one child was removed collapses
// into its surviving sibling.
func removeFromTree(node *LayoutNode, terminalID string) (*LayoutNode, bool) {
	if node == nil {
		return nil, false
	}
	if node.IsLeaf {
		if node.TerminalID == terminalID {
			return nil, true
		}
		return node, false
	}
	newFirst, removedInFirst := removeFromTree(node.First, terminalID)
	if removedInFirst {
		if newFirst == nil {
			return node.Second, true
		}
		return &LayoutNode{NodeID: node.NodeID, Direction: node.Direction, Ratio: node.Ratio, First: newFirst, Second: node.Second}, true
	}
	newSecond, removedInSecond := removeFromTree(node.Second, terminalID)
	if removedInSecond {
		if newSecond == nil {
			return node.First, true
		}
		return &LayoutNode{NodeID: node.NodeID, Direction: node.Direction, Ratio: node.Ratio, First: node.First, Second: newSecond}, true
	}
	return node, false
}

// SetRatio clamps ratio to [0.1, 0.9] and applies it to the named split node.
func (s *LayoutStore) SetRatio(key, splitNodeID string, ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root, ok := s.layouts[key]
	if !ok {
		return
	}
	setRatioIn(root, splitNodeID, clampRatio(ratio))
}

func setRatioIn(node *LayoutNode, splitNodeID string, ratio float64) bool {
	if node == nil || node.IsLeaf {
		return false
	}
	if node.NodeID == splitNodeID {
		node.Ratio = ratio
		return true
	}
	return setRatioIn(node.First, splitNodeID, ratio) || setRatioIn(node.Second, splitNodeID, ratio)
}

// findTerminalIds is an in-order, left-to-right enumeration of leaves.
func findTerminalIds(node *LayoutNode) []string {
	if node == nil {
		return nil
	}
	if node.IsLeaf {
		return []string{node.TerminalID}
	}
	return append(findTerminalIds(node.First), findTerminalIds(node.Second)...)
}

// findSiblingTerminalId returns the nearest other leaf relative to target.
func findSiblingTerminalId(root *LayoutNode, target string) (string, bool) {
	if root == nil || root.IsLeaf {
		return "", false
	}
	if leafTerminalID(root.First) == target {
		return firstLeaf(root.Second)
	}
	if leafTerminalID(root.Second) == target {
		return lastLeaf(root.First)
	}
	if containsTerminal(root.First, target) {
		return findSiblingTerminalId(root.First, target)
	}
	if containsTerminal(root.Second, target) {
		return findSiblingTerminalId(root.Second, target)
	}
	return "", false
}

func leafTerminalID(n *LayoutNode) string {
	if n != nil && n.IsLeaf {
		return n.TerminalID
	}
	return ""
}

func firstLeaf(n *LayoutNode) (string, bool) {
	ids := findTerminalIds(n)
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

func lastLeaf(n *LayoutNode) (string, bool) {
	ids := findTerminalIds(n)
	if len(ids) == 0 {
		return "", false
	}
	return ids[len(ids)-1], true
}

func containsTerminal(n *LayoutNode, target string) bool {
	for _, id := range findTerminalIds(n) {
		if id == target {
			return true
		}
	}
	return false
}

// FindLayoutKeyForTerminal returns terminalID if it is itself a layout key,
// else the key of the first layout whose tree contains it, else "".
func (s *LayoutStore) FindLayoutKeyForTerminal(terminalID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layouts[terminalID]; ok {
		return terminalID
	}
	for key, tree := range s.layouts {
		if containsTerminal(tree, terminalID) {
			return key
		}
	}
	return ""
}
