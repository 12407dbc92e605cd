package kad

import (
	"sort"
	"time"

	"github.com/dep2p/go-subfield/pkg/types"
)

// AddKind TryAdd 结果类型
type AddKind uint8

const (
	// Added 加入空位
	Added AddKind = iota
	// Replaced 替换了桶中最差节点
	Replaced
	// NotAdded 未加入
	NotAdded
	// Updated 已存在，刷新 ping 与地址
	Updated
)

// String 返回结果名称
func (k AddKind) String() string {
	switch k {
	case Added:
		return "added"
	case Replaced:
		return "replaced"
	case Updated:
		return "updated"
	default:
		return "not_added"
	}
}

// AddResult TryAdd 结果
type AddResult struct {
	Kind    AddKind
	Evicted *Node
}

// ResultKind 最近节点查询结果类型
type ResultKind uint8

const (
	// Found 找到节点
	Found ResultKind = iota
	// FoundShouldContainSelf 遍历到本地桶仍不足 n 个，本地节点是隐含候选
	FoundShouldContainSelf
	// SelfIsNearest 没有比本地更近的节点
	SelfIsNearest
	// NoneFound 没有任何节点
	NoneFound
)

// String 返回结果名称
func (k ResultKind) String() string {
	switch k {
	case Found:
		return "found"
	case FoundShouldContainSelf:
		return "found_should_contain_self"
	case SelfIsNearest:
		return "self_is_nearest"
	default:
		return "none_found"
	}
}

// NearestResult Nearest 结果
type NearestResult struct {
	Kind ResultKind
	Node Node
}

// NearestNResult NearestN 结果
type NearestNResult struct {
	Kind  ResultKind
	Nodes []Node
}

// Table Kademlia 路由表
type Table struct {
	local   types.V256
	cfg     Config
	buckets [NumBuckets]bucket
	size    int
	now     func() time.Time
}

// NewTable 创建路由表
func NewTable(local types.V256, cfg Config) *Table {
	return &Table{local: local, cfg: cfg, now: time.Now}
}

// Local 本地标识
func (t *Table) Local() types.V256 {
	return t.local
}

// Config 路由表参数
func (t *Table) Config() Config {
	return t.cfg
}

// BucketIndex 标识所在桶，本地标识落在桶 255
func (t *Table) BucketIndex(id types.V256) int {
	d := int(types.XorLeadingZeros(t.local, id))
	if d > NumBuckets-1 {
		d = NumBuckets - 1
	}
	return d
}

// BucketLen 指定标识所在桶的节点数
func (t *Table) BucketLen(id types.V256) int {
	return len(t.buckets[t.BucketIndex(id)].nodes)
}

// Size 节点总数
func (t *Table) Size() int {
	return t.size
}

// HasRoom 报告该标识能否直接加入（桶有空位或已存在）
func (t *Table) HasRoom(id types.V256) bool {
	if id == t.local {
		return false
	}
	b := &t.buckets[t.BucketIndex(id)]
	return len(b.nodes) < t.cfg.K || b.indexOf(id) >= 0
}

// Get 按标识查找
func (t *Table) Get(id types.V256) (Node, bool) {
	b := &t.buckets[t.BucketIndex(id)]
	if i := b.indexOf(id); i >= 0 {
		return b.nodes[i], true
	}
	return Node{}, false
}

// TryAdd 尝试加入节点
func (t *Table) TryAdd(n Node) AddResult {
	if n.ID == t.local {
		return AddResult{Kind: NotAdded}
	}
	b := &t.buckets[t.BucketIndex(n.ID)]

	if i := b.indexOf(n.ID); i >= 0 {
		cur := &b.nodes[i]
		cur.PingMs = n.PingMs
		if len(n.Addrs) > 0 {
			cur.Addrs = n.Addrs
		}
		b.sort()
		return AddResult{Kind: Updated}
	}

	if n.ObservedSince.IsZero() {
		n.ObservedSince = t.now()
	}

	if len(b.nodes) < t.cfg.K {
		b.nodes = append(b.nodes, n)
		b.sort()
		t.size++
		return AddResult{Kind: Added}
	}

	worst := b.nodes[len(b.nodes)-1]
	if n.PingMs < worst.PingMs {
		b.nodes[len(b.nodes)-1] = n
		b.sort()
		return AddResult{Kind: Replaced, Evicted: &worst}
	}
	return AddResult{Kind: NotAdded}
}

// TryRemove 按标识移除
func (t *Table) TryRemove(id types.V256) bool {
	if t.buckets[t.BucketIndex(id)].remove(id) {
		t.size--
		return true
	}
	return false
}

// Nodes 所有节点，按桶索引与桶内顺序
func (t *Table) Nodes() []Node {
	out := make([]Node, 0, t.size)
	for i := range t.buckets {
		out = append(out, t.buckets[i].nodes...)
	}
	return out
}

// bitSet 报告 v 第 i 位（从最高位计）是否为 1
func bitSet(v [32]byte, i int) bool {
	return v[i/8]>>(7-uint(i%8))&1 == 1
}

// Nearest 返回严格比本地更接近 key 的最近节点
//
// 桶 d 中的节点都比本地更近；d 之后的桶 i 仅当 local^key 第 i 位为 1 时更近，
// 且 i 越小越近。没有更近节点时返回 SelfIsNearest，空表同样如此。
func (t *Table) Nearest(key types.V256) NearestResult {
	lz := int(types.XorLeadingZeros(t.local, key))
	if lz >= NumBuckets {
		return NearestResult{Kind: SelfIsNearest}
	}
	if n, ok := t.buckets[lz].closest(key); ok {
		return NearestResult{Kind: Found, Node: n}
	}
	x := t.local.Xor(key)
	for i := lz + 1; i < NumBuckets; i++ {
		if !bitSet(x, i) {
			continue
		}
		if n, ok := t.buckets[i].closest(key); ok {
			return NearestResult{Kind: Found, Node: n}
		}
	}
	return NearestResult{Kind: SelfIsNearest}
}

// NearestN 从桶 d 向高索引遍历收集至少 n 个节点
//
// 收集满 n 个后再纳入 beta 个相邻桶，最终按与 key 的异或距离排序截断。
// 遍历到本地桶仍不足 n 个时返回 FoundShouldContainSelf。
func (t *Table) NearestN(key types.V256, n int) NearestNResult {
	if n <= 0 {
		return NearestNResult{Kind: NoneFound}
	}
	d := t.BucketIndex(key)
	var (
		out   []Node
		extra = -1
	)
	i := d
	for ; i < NumBuckets; i++ {
		out = append(out, t.buckets[i].nodes...)
		if extra < 0 && len(out) >= n {
			extra = t.cfg.Beta
		}
		if extra == 0 {
			break
		}
		if extra > 0 {
			extra--
		}
	}
	if len(out) == 0 {
		return NearestNResult{Kind: NoneFound}
	}
	sort.Slice(out, func(a, b int) bool { return types.CloserTo(key, out[a].ID, out[b].ID) })
	kind := Found
	if len(out) < n {
		kind = FoundShouldContainSelf
	} else {
		out = out[:n]
	}
	return NearestNResult{Kind: kind, Nodes: out}
}
