package kad

import (
	"sort"

	"github.com/dep2p/go-subfield/pkg/types"
)

// bucket 单个 k 桶，容量很小，线性扫描即可
type bucket struct {
	nodes []Node
}

func (b *bucket) indexOf(id types.V256) int {
	for i := range b.nodes {
		if b.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *bucket) sort() {
	sort.Slice(b.nodes, func(i, j int) bool { return less(b.nodes[i], b.nodes[j]) })
}

func (b *bucket) remove(id types.V256) bool {
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
	return true
}

// closest 桶内与 key 异或距离最小的节点
func (b *bucket) closest(key types.V256) (Node, bool) {
	if len(b.nodes) == 0 {
		return Node{}, false
	}
	best := b.nodes[0]
	for _, n := range b.nodes[1:] {
		if types.CloserTo(key, n.ID, best.ID) {
			best = n
		}
	}
	return best, true
}
