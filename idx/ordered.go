package idx

import (
	"sort"

	"github.com/nickyhof/GrainDB/core"
)

// OrderedIndex is a balanced (AVL) search tree over one column: insert,
// lookup and range are logarithmic in index size, and an in-order walk yields
// positions in key order. Nulls are never indexed.
type OrderedIndex struct {
	column string
	root   *avlNode
	size   int
}

type avlNode struct {
	key       core.Value
	positions []int
	height    int
	left      *avlNode
	right     *avlNode
}

func NewOrderedIndex(column string) *OrderedIndex {
	return &OrderedIndex{column: column}
}

func (idx *OrderedIndex) Column() string { return idx.column }

func (idx *OrderedIndex) Len() int { return idx.size }

func (idx *OrderedIndex) OnInsert(value core.Value, position int) {
	if value.IsNull() {
		return
	}
	idx.root = insert(idx.root, value, position)
	idx.size++
}

func (idx *OrderedIndex) OnDelete(value core.Value, position int) {
	if value.IsNull() {
		return
	}
	node := lookup(idx.root, value)
	if node == nil {
		return
	}
	for i, p := range node.positions {
		if p == position {
			node.positions = append(node.positions[:i], node.positions[i+1:]...)
			idx.size--
			break
		}
	}
	// Empty nodes stay in the tree; a rebuild compacts them.
}

// LookupEqual returns the positions holding value.
func (idx *OrderedIndex) LookupEqual(value core.Value) []int {
	if value.IsNull() {
		return nil
	}
	node := lookup(idx.root, value)
	if node == nil {
		return nil
	}
	return append([]int(nil), node.positions...)
}

// Bound is one end of a range lookup; a nil Value leaves that end open.
type Bound struct {
	Value     *core.Value
	Inclusive bool
}

// LookupRange returns every position whose key falls within [low, high]
// under the bounds' inclusiveness, sorted ascending by position. Callers
// merge candidate lists from different indexes, so key order would leak
// wrong results out of those merges.
func (idx *OrderedIndex) LookupRange(low, high Bound) []int {
	var result []int
	walkRange(idx.root, low, high, &result)
	sort.Ints(result)
	return result
}

func walkRange(node *avlNode, low, high Bound, result *[]int) {
	if node == nil {
		return
	}

	aboveLow, descendLeft := true, true
	if low.Value != nil {
		if cmp, ok := node.key.Compare(*low.Value); ok {
			if cmp < 0 || (cmp == 0 && !low.Inclusive) {
				// Everything left of this node is below the bound too.
				aboveLow, descendLeft = false, false
			}
		} else {
			// Incomparable key (mixed kinds in a variant column): exclude the
			// node but keep walking, since the subtree order says nothing
			// about comparable keys beneath it.
			aboveLow = false
		}
	}
	belowHigh, descendRight := true, true
	if high.Value != nil {
		if cmp, ok := node.key.Compare(*high.Value); ok {
			if cmp > 0 || (cmp == 0 && !high.Inclusive) {
				belowHigh, descendRight = false, false
			}
		} else {
			belowHigh = false
		}
	}

	if descendLeft {
		walkRange(node.left, low, high, result)
	}
	if aboveLow && belowHigh {
		*result = append(*result, node.positions...)
	}
	if descendRight {
		walkRange(node.right, low, high, result)
	}
}

// order compares keys under the tree's total order: Value.Compare where the
// kinds are comparable, kind-tag order otherwise (mixed kinds in a variant
// column).
func order(a, b core.Value) int {
	if cmp, ok := a.Compare(b); ok {
		return cmp
	}
	if a.Kind < b.Kind {
		return -1
	}
	if a.Kind > b.Kind {
		return 1
	}
	return 0
}

func lookup(node *avlNode, key core.Value) *avlNode {
	for node != nil {
		cmp := order(key, node.key)
		switch {
		case cmp < 0:
			node = node.left
		case cmp > 0:
			node = node.right
		default:
			return node
		}
	}
	return nil
}

func insert(node *avlNode, key core.Value, position int) *avlNode {
	if node == nil {
		return &avlNode{key: key, positions: []int{position}, height: 1}
	}

	cmp := order(key, node.key)
	switch {
	case cmp < 0:
		node.left = insert(node.left, key, position)
	case cmp > 0:
		node.right = insert(node.right, key, position)
	default:
		node.positions = append(node.positions, position)
		return node
	}

	return rebalance(node)
}

func height(node *avlNode) int {
	if node == nil {
		return 0
	}
	return node.height
}

func rebalance(node *avlNode) *avlNode {
	node.height = 1 + max(height(node.left), height(node.right))
	balance := height(node.left) - height(node.right)

	switch {
	case balance > 1:
		if height(node.left.left) < height(node.left.right) {
			node.left = rotateLeft(node.left)
		}
		return rotateRight(node)
	case balance < -1:
		if height(node.right.right) < height(node.right.left) {
			node.right = rotateRight(node.right)
		}
		return rotateLeft(node)
	default:
		return node
	}
}

func rotateRight(node *avlNode) *avlNode {
	pivot := node.left
	node.left = pivot.right
	pivot.right = node
	node.height = 1 + max(height(node.left), height(node.right))
	pivot.height = 1 + max(height(pivot.left), height(pivot.right))
	return pivot
}

func rotateLeft(node *avlNode) *avlNode {
	pivot := node.right
	node.right = pivot.left
	pivot.left = node
	node.height = 1 + max(height(node.left), height(node.right))
	pivot.height = 1 + max(height(pivot.left), height(pivot.right))
	return pivot
}

func (idx *OrderedIndex) clear() {
	idx.root = nil
	idx.size = 0
}
