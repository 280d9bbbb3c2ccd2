package material

import "sort"

// Tree is an in-memory adjacency view of the nodes of one Material.
// It is built from the persisted nodes for the duration of a single operation.
type Tree struct {
	byID     map[string]Node
	children map[string][]string // {parentID: childIDs}; "" holds the top-level nodes
}

func NewTree(nodes []Node) *Tree {
	t := &Tree{
		byID:     make(map[string]Node, len(nodes)),
		children: make(map[string][]string),
	}
	for _, n := range nodes {
		t.byID[n.ID] = n
		t.children[n.ParentID] = append(t.children[n.ParentID], n.ID)
	}
	for _, ids := range t.children {
		t.sortIDs(ids)
	}
	return t
}

// sortIDs sorts node IDs by Order, then by creation time and ID for stability.
func (t *Tree) sortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := t.byID[ids[i]], t.byID[ids[j]]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (t *Tree) Len() int { return len(t.byID) }

func (t *Tree) Node(id string) (Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Children returns the direct children of parentID ("" for the top-level nodes), ordered.
func (t *Tree) Children(parentID string) []Node {
	ids := t.children[parentID]
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, t.byID[id])
	}
	return nodes
}

// ValidateNode checks that node (new or being updated, with its proposed ParentID and
// MaterialID) keeps the tree consistent:
//  1. a node cannot be its own parent
//  2. the parent must belong to the same material
//  3. the parent chain must not contain a cycle
//  4. no sibling may share the node's Order
// parent may be nil, in which case it is looked up in the tree.
// A parent chain that was already corrupt is also reported as a cycle, so the walk
// always terminates.
func (t *Tree) ValidateNode(node Node, parent *Node) error {
	if node.ParentID != "" {
		if node.ID != "" && node.ParentID == node.ID {
			return ErrSelfParent
		}

		if parent == nil {
			p, ok := t.byID[node.ParentID]
			if !ok {
				return ErrNodeNotFound
			}
			parent = &p
		}
		if parent.MaterialID != node.MaterialID {
			return ErrForeignParent
		}

		visited := make(map[string]struct{})
		for id := parent.ID; id != ""; {
			if node.ID != "" && id == node.ID {
				return ErrCycle
			}
			if _, seen := visited[id]; seen {
				return ErrCycle
			}
			visited[id] = struct{}{}

			ancestor, ok := t.byID[id]
			if !ok {
				break // the chain left this material's view
			}
			id = ancestor.ParentID
		}
	}

	for _, sibID := range t.children[node.ParentID] {
		if sibID == node.ID {
			continue
		}
		if t.byID[sibID].Order == node.Order {
			return ErrDuplicateOrder
		}
	}
	return nil
}

// NextOrder returns the order placing a new node after the last child of parentID.
func (t *Tree) NextOrder(parentID string) int {
	next := 0
	for _, id := range t.children[parentID] {
		if o := t.byID[id].Order; o >= next {
			next = o + 1
		}
	}
	return next
}

// DescendantIDs returns the IDs of all the nodes reachable from id through children.
// The result never contains id itself and is empty for a leaf or an unknown id.
func (t *Tree) DescendantIDs(id string) map[string]struct{} {
	descendants := make(map[string]struct{})
	stack := append([]string(nil), t.children[id]...)
	for len(stack) > 0 {
		last := len(stack) - 1
		cur := stack[last]
		stack = stack[:last]

		if cur == id {
			continue
		}
		if _, seen := descendants[cur]; seen {
			continue
		}
		descendants[cur] = struct{}{}
		stack = append(stack, t.children[cur]...)
	}
	return descendants
}

// PreOrder returns every node of the tree: top-level nodes by order, each followed by
// its subtree (depth-first, by order). Nodes unreachable from the top level (broken
// chains) come last, sorted by order.
func (t *Tree) PreOrder() []Node {
	out := make([]Node, 0, len(t.byID))
	visited := make(map[string]struct{}, len(t.byID))

	var walk func(id string)
	walk = func(id string) {
		if _, seen := visited[id]; seen {
			return
		}
		visited[id] = struct{}{}
		out = append(out, t.byID[id])
		for _, childID := range t.children[id] {
			walk(childID)
		}
	}
	for _, id := range t.children[""] {
		walk(id)
	}

	if len(out) < len(t.byID) {
		rest := make([]string, 0, len(t.byID)-len(out))
		for id := range t.byID {
			if _, seen := visited[id]; !seen {
				rest = append(rest, id)
			}
		}
		t.sortIDs(rest)
		for _, id := range rest {
			visited[id] = struct{}{}
			out = append(out, t.byID[id])
		}
	}
	return out
}

// Nest returns the node forest rooted at the top-level nodes.
func (t *Tree) Nest() []*NodeTree {
	visited := make(map[string]struct{}, len(t.byID))

	var build func(id string) *NodeTree
	build = func(id string) *NodeTree {
		visited[id] = struct{}{}
		nt := &NodeTree{Node: t.byID[id], Children: []*NodeTree{}}
		for _, childID := range t.children[id] {
			if _, seen := visited[childID]; seen {
				continue
			}
			nt.Children = append(nt.Children, build(childID))
		}
		return nt
	}

	roots := make([]*NodeTree, 0, len(t.children[""]))
	for _, id := range t.children[""] {
		roots = append(roots, build(id))
	}
	return roots
}
