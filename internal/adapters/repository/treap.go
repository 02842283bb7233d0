package repository

import "math/rand/v2"

// Order-statistic treap. "less" means ranks earlier: higher score first,
// then member ascending, so in-order traversal yields the board top-down.

type node struct {
	member string
	score  int64
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore int64, aMember string, bScore int64, bMember string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aMember < bMember
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, member string, score int64) *node {
	if n == nil {
		return &node{member: member, score: score, prio: rand.Uint64(), size: 1}
	}
	if less(score, member, n.score, n.member) {
		n.left = insert(n.left, member, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, member, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, member string, score int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && member == n.member:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, member, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, member, score)
		}
	case less(score, member, n.score, n.member):
		n.left = deleteNode(n.left, member, score)
	default:
		n.right = deleteNode(n.right, member, score)
	}
	fix(n)
	return n
}

// position returns the 0-based in-order index of (score, member), which
// must be present in the tree.
func position(n *node, member string, score int64) int {
	pos := 0
	for n != nil {
		switch {
		case score == n.score && member == n.member:
			return pos + nsize(n.left)
		case less(score, member, n.score, n.member):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectRange appends up to count entries starting at in-order index skip.
// Subtrees entirely before skip are jumped over using their sizes.
func collectRange(n *node, skip, count int, out *[]Entry) {
	if n == nil || count <= len(*out) {
		return
	}
	leftSize := nsize(n.left)
	if skip < leftSize {
		collectRange(n.left, skip, count, out)
	}
	if len(*out) >= count {
		return
	}
	if skip <= leftSize {
		*out = append(*out, Entry{Member: n.member, Score: n.score})
	}
	if len(*out) >= count {
		return
	}
	rightSkip := skip - leftSize - 1
	if rightSkip < 0 {
		rightSkip = 0
	}
	collectRange(n.right, rightSkip, count, out)
}
