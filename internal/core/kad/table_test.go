package kad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-subfield/pkg/types"
)

// idAt 构造与 local 恰好有 d 个前导相同位的标识
func idAt(local types.V256, d int, salt byte) types.V256 {
	id := local
	// 翻转第 d 位，之后的位用 salt 扰动
	id.Payload[d/8] ^= 0x80 >> uint(d%8)
	for i := d/8 + 1; i < 32; i++ {
		id.Payload[i] ^= salt + byte(i)
	}
	return id
}

func newTable(k int) *Table {
	cfg := DefaultConfig()
	cfg.K = k
	return NewTable(types.RandomV256(), cfg)
}

// ============================================================================
// TryAdd / TryRemove 测试
// ============================================================================

// TestTable_TryAdd 测试加入、替换与拒绝
func TestTable_TryAdd(t *testing.T) {
	tbl := newTable(2)
	local := tbl.Local()

	a := Node{ID: idAt(local, 10, 1), PingMs: 50}
	b := Node{ID: idAt(local, 10, 2), PingMs: 30}
	c := Node{ID: idAt(local, 10, 3), PingMs: 40}
	slow := Node{ID: idAt(local, 10, 4), PingMs: 90}

	assert.Equal(t, Added, tbl.TryAdd(a).Kind)
	assert.Equal(t, Added, tbl.TryAdd(b).Kind)
	assert.False(t, tbl.HasRoom(c.ID))

	res := tbl.TryAdd(c)
	require.Equal(t, Replaced, res.Kind)
	require.NotNil(t, res.Evicted)
	assert.Equal(t, a.ID, res.Evicted.ID, "应驱逐 ping 最差的节点")

	assert.Equal(t, NotAdded, tbl.TryAdd(slow).Kind)
	assert.Equal(t, 2, tbl.Size())

	nodes := tbl.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, b.ID, nodes[0].ID, "桶按 ping 升序")

	t.Log("✅ TryAdd 行为正确")
}

// TestTable_TryAddSelfAndUpdate 测试本地节点与重复加入
func TestTable_TryAddSelfAndUpdate(t *testing.T) {
	tbl := newTable(DefaultK)
	local := tbl.Local()

	assert.Equal(t, NotAdded, tbl.TryAdd(Node{ID: local}).Kind)

	n := Node{ID: idAt(local, 3, 1), PingMs: 10, Addrs: []string{"/ip4/1.2.3.4/tcp/1"}}
	assert.Equal(t, Added, tbl.TryAdd(n).Kind)
	assert.Equal(t, Updated, tbl.TryAdd(Node{ID: n.ID, PingMs: 5}).Kind)

	got, ok := tbl.Get(n.ID)
	require.True(t, ok)
	assert.Equal(t, uint32(5), got.PingMs)
	assert.Equal(t, n.Addrs, got.Addrs, "空地址不覆盖已有地址")
	assert.Equal(t, 1, tbl.Size())

	assert.True(t, tbl.TryRemove(n.ID))
	assert.False(t, tbl.TryRemove(n.ID))
	assert.Equal(t, 0, tbl.Size())
}

// TestTable_PingTieBreak 测试 ping 相同时按标识排序
func TestTable_PingTieBreak(t *testing.T) {
	tbl := newTable(DefaultK)
	local := tbl.Local()

	x := Node{ID: idAt(local, 7, 9), PingMs: 20}
	y := Node{ID: idAt(local, 7, 3), PingMs: 20}
	tbl.TryAdd(x)
	tbl.TryAdd(y)

	nodes := tbl.Nodes()
	require.Len(t, nodes, 2)
	assert.True(t, nodes[0].ID.Compare(nodes[1].ID) < 0)
}

// ============================================================================
// 距离与最近节点测试
// ============================================================================

// TestTable_BucketIndex 测试相同前导零数映射到同一桶
func TestTable_BucketIndex(t *testing.T) {
	tbl := newTable(DefaultK)
	local := tbl.Local()

	assert.Equal(t, 255, tbl.BucketIndex(local))
	for _, d := range []int{0, 1, 77, 200, 255} {
		assert.Equal(t, d, tbl.BucketIndex(idAt(local, d, 1)))
		assert.Equal(t, d, tbl.BucketIndex(idAt(local, d, 77)))
	}
}

// TestTable_NearestEmpty 测试空表时本地最近
func TestTable_NearestEmpty(t *testing.T) {
	tbl := newTable(DefaultK)

	assert.Equal(t, SelfIsNearest, tbl.Nearest(types.RandomV256()).Kind)
	assert.Equal(t, NoneFound, tbl.NearestN(types.RandomV256(), 3).Kind)
}

// TestTable_NearestStrictlyCloser 测试 Nearest 只返回严格更近的节点
func TestTable_NearestStrictlyCloser(t *testing.T) {
	tbl := newTable(DefaultK)
	local := tbl.Local()

	for d := 0; d < 64; d += 3 {
		tbl.TryAdd(Node{ID: idAt(local, d, byte(d)), PingMs: uint32(d)})
	}

	for i := 0; i < 200; i++ {
		key := types.RandomV256()
		res := tbl.Nearest(key)

		// 暴力计算真正最近的节点
		best := local
		for _, n := range tbl.Nodes() {
			if types.CloserTo(key, n.ID, best) {
				best = n.ID
			}
		}

		if best == local {
			assert.Equal(t, SelfIsNearest, res.Kind)
			continue
		}
		require.Equal(t, Found, res.Kind)
		assert.True(t, types.CloserTo(key, res.Node.ID, local), "返回节点必须比本地更近")
		assert.Equal(t, best, res.Node.ID)
	}

	t.Log("✅ Nearest 与暴力结果一致")
}

// TestTable_NearestN 测试 closest-N 查询
func TestTable_NearestN(t *testing.T) {
	tbl := newTable(DefaultK)
	local := tbl.Local()

	key := idAt(local, 5, 1)
	for d := 5; d < 30; d++ {
		tbl.TryAdd(Node{ID: idAt(local, d, byte(d))})
	}

	res := tbl.NearestN(key, 4)
	require.Equal(t, Found, res.Kind)
	require.Len(t, res.Nodes, 4)
	for i := 1; i < len(res.Nodes); i++ {
		assert.True(t, types.CloserTo(key, res.Nodes[i-1].ID, res.Nodes[i].ID), "按距离排序")
	}

	all := tbl.NearestN(key, 100)
	assert.Equal(t, FoundShouldContainSelf, all.Kind)
	assert.Len(t, all.Nodes, 25)

	// 固定表状态下结果确定
	assert.Equal(t, res, tbl.NearestN(key, 4))
}

// TestConfig_Validate 测试参数校验
func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{K: 0, Alpha: 3}.Validate())
	assert.Error(t, Config{K: 20, Alpha: 0}.Validate())
	assert.Error(t, Config{K: 20, Alpha: 3, Beta: -1}.Validate())
}
