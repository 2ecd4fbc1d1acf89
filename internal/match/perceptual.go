package match

import (
	"mediacat/internal/hash"
	"mediacat/internal/models"
)

// DefaultThreshold is the Hamming distance under which two images are similar
const DefaultThreshold = 10

// PerceptualMatcher finds groups of visually similar images using perceptual hashing
type PerceptualMatcher struct {
	threshold int
}

// NewPerceptualMatcher creates a new PerceptualMatcher
func NewPerceptualMatcher(threshold int) *PerceptualMatcher {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &PerceptualMatcher{threshold: threshold}
}

// FindGroups finds groups of similar images based on Hamming distance.
// Records without a perceptual hash (videos, or scans run without one) are
// never grouped. Uses a BK-tree so lookups stay well below O(n²).
func (m *PerceptualMatcher) FindGroups(records []*models.ImageRecord) []*models.DuplicateGroup {
	var hashed []*models.ImageRecord
	for _, rec := range records {
		if rec.MediaType == models.MediaImage && rec.PerceptualHash != 0 {
			hashed = append(hashed, rec)
		}
	}
	n := len(hashed)
	if n < 2 {
		return nil
	}

	uf := newUnionFind(n)
	tree := newBKTree(hash.HammingDistance)

	for i, rec := range hashed {
		for _, j := range tree.findWithinDistance(rec.PerceptualHash, m.threshold) {
			uf.union(i, j)
		}
		tree.insert(rec.PerceptualHash, i)
	}

	// Buckets keyed by root, kept in first-seen order
	index := make(map[int]int)
	var buckets [][]*models.ImageRecord
	for i, rec := range hashed {
		root := uf.find(i)
		b, ok := index[root]
		if !ok {
			b = len(buckets)
			index[root] = b
			buckets = append(buckets, nil)
		}
		buckets[b] = append(buckets[b], rec)
	}

	return buildGroups(buckets)
}

// Threshold returns the current threshold
func (m *PerceptualMatcher) Threshold() int {
	return m.threshold
}

// Union-Find data structure for efficient grouping
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	if uf.parent[x] != x {
		uf.parent[x] = uf.find(uf.parent[x]) // Path compression
	}
	return uf.parent[x]
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}

// bkTree is a BK-tree for efficient similarity search using metric distances.
// It supports O(log n) average-case lookup for finding all elements within
// a given distance threshold.
type bkTree struct {
	root     *bkNode
	distance func(a, b uint64) int
}

type bkNode struct {
	hash     uint64
	index    int
	children map[int]*bkNode // distance -> child node
}

// newBKTree creates a new BK-tree with the given distance function.
func newBKTree(distanceFn func(a, b uint64) int) *bkTree {
	return &bkTree{
		distance: distanceFn,
	}
}

// insert adds a new hash with its associated index to the tree.
func (t *bkTree) insert(hash uint64, index int) {
	node := &bkNode{
		hash:     hash,
		index:    index,
		children: make(map[int]*bkNode),
	}

	if t.root == nil {
		t.root = node
		return
	}

	current := t.root
	for {
		dist := t.distance(hash, current.hash)
		if child, exists := current.children[dist]; exists {
			current = child
		} else {
			current.children[dist] = node
			return
		}
	}
}

// findWithinDistance returns all indices of elements within the given
// distance threshold from the query hash.
func (t *bkTree) findWithinDistance(hash uint64, threshold int) []int {
	if t.root == nil {
		return nil
	}

	var results []int
	t.searchNode(t.root, hash, threshold, &results)
	return results
}

func (t *bkTree) searchNode(node *bkNode, hash uint64, threshold int, results *[]int) {
	dist := t.distance(hash, node.hash)

	if dist <= threshold {
		*results = append(*results, node.index)
	}

	// Triangle inequality: only need to check children with distance
	// in range [dist - threshold, dist + threshold]
	minDist := dist - threshold
	if minDist < 0 {
		minDist = 0
	}
	maxDist := dist + threshold

	for childDist, child := range node.children {
		if childDist >= minDist && childDist <= maxDist {
			t.searchNode(child, hash, threshold, results)
		}
	}
}

// size returns the number of elements in the tree.
func (t *bkTree) size() int {
	if t.root == nil {
		return 0
	}
	return t.countNodes(t.root)
}

func (t *bkTree) countNodes(node *bkNode) int {
	count := 1
	for _, child := range node.children {
		count += t.countNodes(child)
	}
	return count
}
