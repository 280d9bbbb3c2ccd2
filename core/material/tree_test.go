package material

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func node(id, materialID, parentID string, order int) Node {
	return Node{ID: id, MaterialID: materialID, ParentID: parentID, Title: id, Order: order}
}

// testForest:
//
//	m1: a -> b -> c, a -> d, e (top-level)
//	m2: x
func testForest() []Node {
	return []Node{
		node("a", "m1", "", 0),
		node("b", "m1", "a", 0),
		node("c", "m1", "b", 0),
		node("d", "m1", "a", 1),
		node("e", "m1", "", 1),
		node("x", "m2", "", 0),
	}
}

func TestTree_ValidateNode(t *testing.T) {
	tree := NewTree(testForest())
	foreign := node("x", "m2", "", 0)

	tests := []struct {
		name    string
		node    Node
		parent  *Node
		wantErr error
	}{
		{name: "new top-level node", node: node("", "m1", "", 2)},
		{name: "new child", node: node("", "m1", "c", 0)},
		{name: "new child with duplicate order", node: node("", "m1", "a", 1), wantErr: ErrDuplicateOrder},
		{name: "new top-level with duplicate order", node: node("", "m1", "", 0), wantErr: ErrDuplicateOrder},
		{name: "unknown parent", node: node("", "m1", "lol", 0), wantErr: ErrNodeNotFound},
		{name: "own parent", node: node("b", "m1", "b", 0), wantErr: ErrSelfParent},
		{name: "parent from other material", node: node("e", "m1", "x", 0), parent: &foreign, wantErr: ErrForeignParent},
		{name: "parent from other material (looked up)", node: node("e", "m1", "x", 0), wantErr: ErrForeignParent},
		{name: "parent is a child", node: node("a", "m1", "b", 5), wantErr: ErrCycle},
		{name: "parent is a deep descendant", node: node("a", "m1", "c", 5), wantErr: ErrCycle},
		{name: "move to sibling subtree", node: node("d", "m1", "c", 0)},
		{name: "move to top level", node: node("c", "m1", "", 2)},
		{name: "keep own order", node: node("d", "m1", "a", 1)},
		{name: "swap into sibling order", node: node("d", "m1", "a", 0), wantErr: ErrDuplicateOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tree.ValidateNode(tt.node, tt.parent)
			if err != tt.wantErr {
				t.Errorf("ValidateNode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTree_ValidateNode_twoNodeCycle(t *testing.T) {
	// Y's parent is X: X cannot be moved under Y
	tree := NewTree([]Node{
		node("X", "m", "", 0),
		node("Y", "m", "X", 0),
	})

	err := tree.ValidateNode(node("X", "m", "Y", 0), nil)
	assert.Equal(t, ErrCycle, err)
	assert.True(t, IsInvalidHierarchy(err))
}

func TestTree_ValidateNode_closingCycle(t *testing.T) {
	// A -> B -> C: A under C would close A -> B -> C -> A
	nodes := []Node{
		node("A", "m", "", 0),
		node("B", "m", "A", 0),
		node("C", "m", "B", 0),
	}
	tree := NewTree(nodes)

	assert.NoError(t, tree.ValidateNode(node("C", "m", "B", 0), nil))
	assert.Equal(t, ErrCycle, tree.ValidateNode(node("A", "m", "C", 0), nil))
}

func TestTree_ValidateNode_corruptChain(t *testing.T) {
	// p <-> q already form a cycle; the walk must still terminate
	tree := NewTree([]Node{
		node("p", "m", "q", 0),
		node("q", "m", "p", 0),
	})

	done := make(chan error, 1)
	go func() { done <- tree.ValidateNode(node("", "m", "p", 1), nil) }()

	select {
	case err := <-done:
		assert.Equal(t, ErrCycle, err)
	case <-time.After(time.Second):
		t.Fatal("ValidateNode() did not terminate")
	}
}

func TestTree_DescendantIDs(t *testing.T) {
	tree := NewTree(testForest())

	tests := []struct {
		name string
		id   string
		want []string
	}{
		{name: "root", id: "a", want: []string{"b", "c", "d"}},
		{name: "middle", id: "b", want: []string{"c"}},
		{name: "leaf", id: "c", want: nil},
		{name: "top-level leaf", id: "e", want: nil},
		{name: "unknown", id: "lol", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tree.DescendantIDs(tt.id)
			assert.Len(t, got, len(tt.want))
			for _, id := range tt.want {
				assert.Contains(t, got, id)
			}
			assert.NotContains(t, got, tt.id)
		})
	}
}

func TestTree_DescendantIDs_corruptChain(t *testing.T) {
	tree := NewTree([]Node{
		node("p", "m", "q", 0),
		node("q", "m", "p", 0),
	})

	got := tree.DescendantIDs("p")
	assert.Len(t, got, 1)
	assert.Contains(t, got, "q")
}

func TestTree_NextOrder(t *testing.T) {
	tree := NewTree(append(testForest(), node("f", "m1", "", 7)))

	assert.Equal(t, 8, tree.NextOrder(""))
	assert.Equal(t, 2, tree.NextOrder("a"))
	assert.Equal(t, 0, tree.NextOrder("c"))
}

func TestTree_PreOrder(t *testing.T) {
	nodes := testForest()[:5]
	nodes = append(nodes, node("orphan", "m1", "gone", 3))
	tree := NewTree(nodes)

	var got []string
	for _, n := range tree.PreOrder() {
		got = append(got, n.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "orphan"}, got)
}

func TestTree_Nest(t *testing.T) {
	tree := NewTree(testForest()[:5])

	roots := tree.Nest()
	if assert.Len(t, roots, 2) {
		assert.Equal(t, "a", roots[0].ID)
		assert.Equal(t, "e", roots[1].ID)
		assert.Empty(t, roots[1].Children)

		if assert.Len(t, roots[0].Children, 2) {
			assert.Equal(t, "b", roots[0].Children[0].ID)
			assert.Equal(t, "d", roots[0].Children[1].ID)
			assert.Equal(t, "c", roots[0].Children[0].Children[0].ID)
		}
	}
}
