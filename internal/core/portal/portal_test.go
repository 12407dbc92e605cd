package portal

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-subfield/pkg/types"
)

// ============================================================================
// Manager 测试
// ============================================================================

// TestManager_ResolveOnce 测试一次性条目只投递一次
func TestManager_ResolveOnce(t *testing.T) {
	m := NewManager[string](clock.NewMock())
	sink, ch := OneShot[string]()

	id := m.NextID()
	m.Register(id, types.RandomV256(), time.Second, false, sink)

	assert.True(t, m.Resolve(id, "ok"))
	assert.False(t, m.Resolve(id, "late"), "迟到的响应被丢弃")

	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 0, m.Len())
}

// TestManager_Timeout 测试截止时间到期
func TestManager_Timeout(t *testing.T) {
	clk := clock.NewMock()
	m := NewManager[int](clk)
	sink, ch := OneShot[int]()

	id := m.NextID()
	m.Register(id, types.RandomV256(), 10*time.Second, false, sink)

	clk.Add(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("未到截止时间")
	default:
	}

	clk.Add(2 * time.Second)
	res := <-ch
	assert.ErrorIs(t, res.Err, types.ErrTimeout)
	assert.False(t, m.Resolve(id, 1))

	t.Log("✅ 截止时间到期后以 Timeout 终止")
}

// TestManager_StreamEntry 测试流式条目保持登记
func TestManager_StreamEntry(t *testing.T) {
	clk := clock.NewMock()
	m := NewManager[int](clk)

	var got []int
	id := m.NextID()
	m.Register(id, types.RandomV256(), time.Second, true, func(v int, err error) {
		if err == nil {
			got = append(got, v)
		}
	})

	assert.True(t, m.Resolve(id, 1))
	clk.Add(5 * time.Second)
	assert.True(t, m.Resolve(id, 2), "首个响应后不再受截止时间约束")
	assert.Equal(t, []int{1, 2}, got)

	assert.True(t, m.Remove(id))
	assert.False(t, m.Resolve(id, 3))
}

// TestManager_FailPeer 测试按节点终止
func TestManager_FailPeer(t *testing.T) {
	m := NewManager[int](nil)
	peer := types.RandomV256()
	closed := errors.New("closed")

	var errs []error
	sink := func(_ int, err error) { errs = append(errs, err) }
	m.Register(m.NextID(), peer, 0, false, sink)
	m.Register(m.NextID(), peer, 0, true, sink)
	m.Register(m.NextID(), types.RandomV256(), 0, false, sink)

	assert.Equal(t, 2, m.FailPeer(peer, closed))
	assert.Len(t, errs, 2)
	assert.Equal(t, 1, m.Len())

	assert.Equal(t, 1, m.FailAll(closed))
	assert.Len(t, errs, 3)
	assert.Zero(t, m.Len())
}

// ============================================================================
// Stream 测试
// ============================================================================

// TestStream_Overflow 测试溢出关闭
func TestStream_Overflow(t *testing.T) {
	s := NewStream[int](2)

	require.NoError(t, s.Push(1))
	require.NoError(t, s.Push(2))
	assert.ErrorIs(t, s.Push(3), types.ErrSubscriberSlow)

	var got []int
	for v := range s.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got, "已缓冲的项不丢失")
	assert.ErrorIs(t, s.Err(), types.ErrSubscriberSlow)

	<-s.Done()
	s.CloseWithError(nil)
}
