package engine

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-subfield/internal/core/portal"
	"github.com/dep2p/go-subfield/internal/core/storage"
	"github.com/dep2p/go-subfield/internal/core/swarm"
	"github.com/dep2p/go-subfield/internal/core/transport"
	"github.com/dep2p/go-subfield/internal/core/transport/tcp"
	"github.com/dep2p/go-subfield/internal/protocol/wire"
	"github.com/dep2p/go-subfield/pkg/lib/crypto"
	"github.com/dep2p/go-subfield/pkg/record"
	"github.com/dep2p/go-subfield/pkg/types"
)

// ============================================================================
// 测试辅助
// ============================================================================

func newEngine(t *testing.T, start bool, opts ...Option) *Engine {
	t.Helper()
	return newEngineWith(t, start, DefaultConfig(), opts...)
}

// newEngineWith 以给定配置创建引擎
func newEngineWith(t *testing.T, start bool, cfg Config, opts ...Option) *Engine {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	sw, err := swarm.New(kp, transport.Set{tcp.New()}, swarm.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, sw.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0")))

	store, err := storage.NewMemory(1024)
	require.NoError(t, err)

	e, err := New(sw, store, cfg, opts...)
	require.NoError(t, err)
	if start {
		require.NoError(t, e.Start())
	}
	t.Cleanup(func() {
		_ = e.Close()
		_ = sw.Close()
	})
	return e
}

func inTable(e *Engine, id types.V256) bool {
	nodes, err := e.Nodes(context.Background())
	if err != nil {
		return false
	}
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// connect a 拨号到 b 并等待 a 的路由表包含 b
func connect(t *testing.T, a, b *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.swarm.Connect(ctx, b.swarm.ListenAddrs()[0])
	require.NoError(t, err)
	require.Eventually(t, func() bool { return inTable(a, b.local) }, 5*time.Second, 10*time.Millisecond)
}

// closerTo 生成距 near 比距 far 更近的随机标识
func closerTo(near, far types.V256) types.V256 {
	for {
		v := types.RandomV256()
		if types.CloserTo(v, near, far) {
			return v
		}
	}
}

func signedRecord(t *testing.T, kp *crypto.Keypair, key types.CompleteKey, data string, at time.Time) *record.Signed {
	t.Helper()
	r := record.New(key, []byte(data))
	r.CreatedAt = at.UTC()
	r.UpdatedAt = at.UTC()
	s, err := record.Sign(kp, r)
	require.NoError(t, err)
	return s
}

func putReq(key types.CompleteKey, f types.RoutingField, s *record.Signed) *wire.Request {
	rk := key.RoutingKey(f)
	return &wire.Request{Type: wire.TypePutRecord, RoutingKey: &rk, Record: s}
}

func getReq(key types.CompleteKey, f types.RoutingField) *wire.Request {
	rk := key.RoutingKey(f)
	return &wire.Request{Type: wire.TypeGetRecord, RoutingKey: &rk}
}

func deleteReq(key types.CompleteKey, f types.RoutingField, tomb *record.Tombstone) *wire.Request {
	rk := key.RoutingKey(f)
	return &wire.Request{Type: wire.TypeDeleteRecord, RoutingKey: &rk, Tombstone: tomb}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// 单节点测试
// ============================================================================

// TestEngine_EchoPing 测试单节点 Echo 与 Ping
func TestEngine_EchoPing(t *testing.T) {
	e := newEngine(t, true)
	ctx := testCtx(t)

	target := types.RandomV256()
	resp, err := e.Request(ctx, &wire.Request{Type: wire.TypeEcho, Target: &target, Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Message)

	t0 := time.Now().UnixMilli() + 60_000
	resp, err = e.Request(ctx, &wire.Request{Type: wire.TypePing, Target: &target, Timestamp: t0})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.Timestamp, t0)

	t.Log("✅ 单节点 Echo/Ping 正常")
}

// TestEngine_PutGetDelete 测试本地写入、查询与删除
func TestEngine_PutGetDelete(t *testing.T) {
	e := newEngine(t, true)
	ctx := testCtx(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	key := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
	now := time.Now()
	r1 := signedRecord(t, kp, key, "x", now)

	for _, f := range types.AllFields {
		_, err := e.Request(ctx, putReq(key, f, r1))
		require.NoError(t, err, f.String())
	}
	assert.Equal(t, 1, e.store.Len(), "三个扇出目标落在同一节点，重复写入幂等")

	resp, err := e.Request(ctx, getReq(key, types.FieldCosigner))
	require.NoError(t, err)
	rec, err := resp.Record.Decode()
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), rec.Data.Bytes)

	// 旧版本被拒绝
	r0 := signedRecord(t, kp, key, "old", now.Add(-time.Minute))
	_, err = e.Request(ctx, putReq(key, types.FieldSigner, r0))
	assert.ErrorIs(t, err, types.ErrOutdated)

	// 删除需要作者签名
	other, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	deletedAt := now.Add(time.Second)
	_, err = e.Request(ctx, deleteReq(key, types.FieldTangent, record.SignDelete(other, key, deletedAt)))
	assert.ErrorIs(t, err, types.ErrInvalidSignature)

	_, err = e.Request(ctx, deleteReq(key, types.FieldTangent, record.SignDelete(kp, key, deletedAt)))
	require.NoError(t, err)
	_, err = e.Request(ctx, deleteReq(key, types.FieldTangent, record.SignDelete(kp, key, deletedAt.Add(time.Second))))
	require.NoError(t, err, "删除不存在的键同样成功")

	_, err = e.Request(ctx, getReq(key, types.FieldSigner))
	assert.ErrorIs(t, err, types.ErrNotFound)

	t.Log("✅ 本地写入、查询、删除正常")
}

// TestEngine_DeleteTombstone 测试删除后的记录不能重新写入
func TestEngine_DeleteTombstone(t *testing.T) {
	e := newEngine(t, true)
	ctx := testCtx(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	key := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
	now := time.Now()
	r1 := signedRecord(t, kp, key, "r1", now)

	_, err = e.Request(ctx, putReq(key, types.FieldSigner, r1))
	require.NoError(t, err)
	_, err = e.Request(ctx, deleteReq(key, types.FieldSigner, record.SignDelete(kp, key, now.Add(time.Second))))
	require.NoError(t, err)

	// 任一字段重放 R1 均被拒绝
	for _, f := range types.AllFields {
		_, err = e.Request(ctx, putReq(key, f, r1))
		assert.ErrorIs(t, err, types.ErrOutdated, f.String())
	}
	// 与删除时间相同的记录同样被覆盖
	_, err = e.Request(ctx, putReq(key, types.FieldSigner, signedRecord(t, kp, key, "tie", now.Add(time.Second))))
	assert.ErrorIs(t, err, types.ErrOutdated)

	_, err = e.Request(ctx, getReq(key, types.FieldCosigner))
	assert.ErrorIs(t, err, types.ErrNotFound)

	// 删除之后的记录可以写入
	r2 := signedRecord(t, kp, key, "r2", now.Add(time.Minute))
	_, err = e.Request(ctx, putReq(key, types.FieldTangent, r2))
	require.NoError(t, err)
	resp, err := e.Request(ctx, getReq(key, types.FieldSigner))
	require.NoError(t, err)
	assert.True(t, resp.Record.Equal(r2))

	t.Log("✅ 墓碑拒绝删除前的记录")
}

// TestEngine_DeleteReplay 测试旧的删除请求不能删除之后写入的记录
func TestEngine_DeleteReplay(t *testing.T) {
	e := newEngine(t, true)
	ctx := testCtx(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	key := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
	t1 := time.Now()

	_, err = e.Request(ctx, putReq(key, types.FieldSigner, signedRecord(t, kp, key, "r1", t1.Add(-time.Second))))
	require.NoError(t, err)
	captured := record.SignDelete(kp, key, t1)
	_, err = e.Request(ctx, deleteReq(key, types.FieldSigner, captured))
	require.NoError(t, err)

	r2 := signedRecord(t, kp, key, "r2", t1.Add(time.Minute))
	_, err = e.Request(ctx, putReq(key, types.FieldSigner, r2))
	require.NoError(t, err)

	// 截获的删除在所有字段上重放
	for _, f := range types.AllFields {
		_, err = e.Request(ctx, deleteReq(key, f, captured))
		assert.ErrorIs(t, err, types.ErrOutdated, f.String())
	}

	resp, err := e.Request(ctx, getReq(key, types.FieldTangent))
	require.NoError(t, err)
	assert.True(t, resp.Record.Equal(r2))

	// 篡改删除时间使签名失效
	forged := *captured
	forged.DeletedAt = t1.Add(time.Hour).UTC()
	_, err = e.Request(ctx, deleteReq(key, types.FieldSigner, &forged))
	assert.ErrorIs(t, err, types.ErrInvalidSignature)

	t.Log("✅ 重放的删除被拒绝")
}

// TestEngine_EvictedWatermark 测试容量淘汰后旧记录不能重新写入
func TestEngine_EvictedWatermark(t *testing.T) {
	kp0, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	sw, err := swarm.New(kp0, transport.Set{tcp.New()}, swarm.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sw.Close() })
	require.NoError(t, sw.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0")))
	store, err := storage.NewMemory(1)
	require.NoError(t, err)
	e, err := New(sw, store, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Close() })
	ctx := testCtx(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	k1 := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
	k2 := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}
	now := time.Now()

	old := signedRecord(t, kp, k1, "old", now)
	_, err = e.Request(ctx, putReq(k1, types.FieldSigner, signedRecord(t, kp, k1, "new", now.Add(time.Second))))
	require.NoError(t, err)
	_, err = e.Request(ctx, putReq(k2, types.FieldSigner, signedRecord(t, kp, k2, "other", now)))
	require.NoError(t, err)

	// k1 已被挤出，旧版本仍被拒绝
	_, err = e.Request(ctx, putReq(k1, types.FieldSigner, old))
	assert.ErrorIs(t, err, types.ErrOutdated)

	t.Log("✅ 淘汰水位保持单调")
}

// TestEngine_WrongSigner 测试非作者签名被拒绝
func TestEngine_WrongSigner(t *testing.T) {
	e := newEngine(t, true)
	ctx := testCtx(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	other, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	key := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}

	bad := signedRecord(t, other, key, "x", time.Now())
	for _, f := range types.AllFields {
		_, err := e.Request(ctx, putReq(key, f, bad))
		assert.ErrorIs(t, err, types.ErrInvalidSignature, f.String())
	}
	_, err = e.Request(ctx, getReq(key, types.FieldSigner))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestEngine_LocalSubscription 测试本地订阅按写入顺序推送
func TestEngine_LocalSubscription(t *testing.T) {
	e := newEngine(t, true)
	ctx := testCtx(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	key := types.CompleteKey{Signer: kp.ID(), Cosigner: types.RandomV256(), Tangent: types.RandomV256()}

	sub, err := e.Subscribe(ctx, key.RoutingKey(types.FieldTangent))
	require.NoError(t, err)

	base := time.Now()
	for i, data := range []string{"r1", "r2", "r3"} {
		_, err := e.Request(ctx, putReq(key, types.FieldSigner, signedRecord(t, kp, key, data, base.Add(time.Duration(i)*time.Second))))
		require.NoError(t, err)
	}
	for _, want := range []string{"r1", "r2", "r3"} {
		select {
		case frame := <-sub.C():
			rec, err := frame.Record.Decode()
			require.NoError(t, err)
			assert.Equal(t, want, string(rec.Data.Bytes))
		case <-time.After(5 * time.Second):
			t.Fatalf("未收到 %s", want)
		}
	}

	require.NoError(t, sub.Unsubscribe(ctx))
	_, err = e.Request(ctx, putReq(key, types.FieldSigner, signedRecord(t, kp, key, "r4", base.Add(time.Hour))))
	require.NoError(t, err)
	_, ok := <-sub.C()
	assert.False(t, ok, "取消后通道关闭")
	assert.NoError(t, sub.Err())
}

// ============================================================================
// 多节点测试
// ============================================================================

// TestEngine_ForwardPut 测试记录被转发到最近节点
func TestEngine_ForwardPut(t *testing.T) {
	a, b := newEngine(t, true), newEngine(t, true)
	connect(t, a, b)
	require.Eventually(t, func() bool { return inTable(b, a.local) }, 5*time.Second, 10*time.Millisecond)
	ctx := testCtx(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	key := types.CompleteKey{
		Signer:   kp.ID(),
		Cosigner: types.RandomV256(),
		Tangent:  closerTo(b.local, a.local),
	}
	_, err = a.Request(ctx, putReq(key, types.FieldTangent, signedRecord(t, kp, key, "x", time.Now())))
	require.NoError(t, err)

	_, err = a.store.Get(key.Partial())
	assert.ErrorIs(t, err, types.ErrNotFound, "A 不是最近节点")
	_, err = b.store.Get(key.Partial())
	assert.NoError(t, err)

	resp, err := a.Request(ctx, getReq(key, types.FieldTangent))
	require.NoError(t, err)
	assert.Equal(t, types.FieldTangent, resp.RoutingKey.Field)

	assert.Equal(t, 1.0, counterValue(t, a.metrics.Registry(), "subfield_forwarded_total", "put-record"))
	assert.Equal(t, 1.0, counterValue(t, a.metrics.Registry(), "subfield_forwarded_total", "get-record"))
}

// fallbackSetup 构造 A 对 Tangent 最近而 B 对 Signer 与 Cosigner 最近的键，记录只存于 B
func fallbackSetup(t *testing.T, a, b *Engine) (types.CompleteKey, *record.Signed) {
	t.Helper()
	var kp *crypto.Keypair
	for kp == nil || !types.CloserTo(kp.ID(), b.local, a.local) {
		var err error
		kp, err = crypto.GenerateKeypair()
		require.NoError(t, err)
	}
	key := types.CompleteKey{
		Signer:   kp.ID(),
		Cosigner: closerTo(b.local, a.local),
		Tangent:  closerTo(a.local, b.local),
	}
	s := signedRecord(t, kp, key, "remote", time.Now())
	require.NoError(t, b.store.Put(key, s))
	return key, s
}

// TestEngine_GetFallback 测试本地最近但未命中时改用其他字段查询远端
func TestEngine_GetFallback(t *testing.T) {
	a, b := newEngine(t, true), newEngine(t, true)
	connect(t, a, b)
	require.Eventually(t, func() bool { return inTable(b, a.local) }, 5*time.Second, 10*time.Millisecond)
	ctx := testCtx(t)

	key, s := fallbackSetup(t, a, b)

	resp, err := a.Request(ctx, getReq(key, types.FieldTangent))
	require.NoError(t, err)
	assert.True(t, resp.Record.Equal(s))
	assert.NotEqual(t, types.FieldTangent, resp.RoutingKey.Field, "回复来自其他字段的目的地")

	_, err = a.store.Get(key.Partial())
	assert.ErrorIs(t, err, types.ErrNotFound, "A 本地没有记录")

	// 回退的最终回复计入请求指标
	assert.Equal(t, 1.0, requestCount(t, a.metrics.Registry(), "get-record", "ok"))
	assert.Equal(t, 0.0, requestCount(t, a.metrics.Registry(), "get-record", "not-found"))

	t.Log("✅ Get 回退命中远端记录")
}

// TestEngine_GetFallbackDisabled 测试关闭回退时本地未命中直接返回
func TestEngine_GetFallbackDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GetFallback = false
	a, b := newEngineWith(t, true, cfg), newEngine(t, true)
	connect(t, a, b)
	require.Eventually(t, func() bool { return inTable(b, a.local) }, 5*time.Second, 10*time.Millisecond)
	ctx := testCtx(t)

	key, _ := fallbackSetup(t, a, b)

	_, err := a.Request(ctx, getReq(key, types.FieldTangent))
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 1.0, requestCount(t, a.metrics.Registry(), "get-record", "not-found"))

	// 按其他字段路由仍能取到
	_, err = a.Request(ctx, getReq(key, types.FieldCosigner))
	assert.NoError(t, err)
}

// requestCount 读取 subfield_requests_total 中 type 与 outcome 对应的值
func requestCount(t *testing.T, reg *prometheus.Registry, typ, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "subfield_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["type"] == typ && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// counterValue 读取带单个标签值的计数器
func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// TestEngine_RemoteSubscription 测试经远端节点的订阅推送与取消
func TestEngine_RemoteSubscription(t *testing.T) {
	a, b := newEngine(t, true), newEngine(t, true)
	connect(t, a, b)
	require.Eventually(t, func() bool { return inTable(b, a.local) }, 5*time.Second, 10*time.Millisecond)
	ctx := testCtx(t)

	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	key := types.CompleteKey{
		Signer:   kp.ID(),
		Cosigner: types.RandomV256(),
		Tangent:  closerTo(b.local, a.local),
	}

	sub, err := a.Subscribe(ctx, key.RoutingKey(types.FieldTangent))
	require.NoError(t, err)
	assert.Equal(t, 1.0, gaugeValue(t, b.metrics.Registry(), "subfield_subscriptions"))

	base := time.Now()
	for i, data := range []string{"r1", "r2", "r3"} {
		_, err := a.Request(ctx, putReq(key, types.FieldTangent, signedRecord(t, kp, key, data, base.Add(time.Duration(i)*time.Second))))
		require.NoError(t, err)
	}
	for _, want := range []string{"r1", "r2", "r3"} {
		select {
		case frame := <-sub.C():
			rec, err := frame.Record.Decode()
			require.NoError(t, err)
			assert.Equal(t, want, string(rec.Data.Bytes))
		case <-time.After(5 * time.Second):
			t.Fatalf("未收到 %s", want)
		}
	}

	require.NoError(t, sub.Unsubscribe(ctx))
	assert.Equal(t, 0.0, gaugeValue(t, b.metrics.Registry(), "subfield_subscriptions"), "服务端绑定已解除")

	t.Log("✅ 远端订阅按序推送并可取消")
}

// gaugeValue 读取无标签的 Gauge
func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

// TestEngine_HopLimit 测试跳数耗尽
func TestEngine_HopLimit(t *testing.T) {
	a, b := newEngine(t, true), newEngine(t, true)
	connect(t, a, b)
	ctx := testCtx(t)

	target := closerTo(b.local, a.local)
	req := &wire.Request{Type: wire.TypeEcho, Target: &target, Message: "x"}

	sink, ch := portal.OneShot[*wire.Response]()
	require.NoError(t, a.do(ctx, func() { a.route(a.local, 0, req, sink) }))
	r := <-ch
	require.NoError(t, r.Err)
	assert.Equal(t, wire.FailureHopLimit, r.Value.Failure)

	resp, err := a.Request(ctx, req)
	require.NoError(t, err, "正常跳数下由 B 应答")
	assert.Equal(t, "x", resp.Message)
}

// TestEngine_Timeout 测试下游不应答时请求超时
func TestEngine_Timeout(t *testing.T) {
	clk := clock.NewMock()
	a := newEngine(t, true, WithClock(clk))
	b := newEngine(t, false)
	connect(t, a, b)
	ctx := testCtx(t)

	target := closerTo(b.local, a.local)
	errCh := make(chan error, 1)
	go func() {
		_, err := a.Request(ctx, &wire.Request{Type: wire.TypeEcho, Target: &target})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return a.portals.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	clk.Add(a.cfg.RequestTimeout)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, types.ErrTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("请求未超时")
	}
}

// TestEngine_ClosestGlobal 测试迭代查找发现未直连的节点
func TestEngine_ClosestGlobal(t *testing.T) {
	a, b, c := newEngine(t, true), newEngine(t, true), newEngine(t, true)
	connect(t, a, b)
	connect(t, c, b)
	require.Eventually(t, func() bool { return inTable(b, a.local) && inTable(b, c.local) }, 5*time.Second, 10*time.Millisecond)
	require.False(t, a.swarm.Connected(c.local))

	info, err := a.ClosestGlobal(testCtx(t), c.local)
	require.NoError(t, err)
	assert.Equal(t, c.local, info.ID)
	assert.True(t, a.swarm.Connected(c.local), "查找过程中拨号到 C")

	self, err := a.ClosestGlobal(testCtx(t), a.local)
	require.NoError(t, err)
	assert.Equal(t, a.local, self.ID)
}

// TestEngine_PeerDisconnect 测试断开后移出路由表
func TestEngine_PeerDisconnect(t *testing.T) {
	a, b := newEngine(t, true), newEngine(t, true)
	connect(t, a, b)

	require.True(t, a.swarm.ClosePeer(b.local))
	require.Eventually(t, func() bool { return !inTable(a, b.local) }, 5*time.Second, 10*time.Millisecond)

	target := closerTo(b.local, a.local)
	resp, err := a.Request(testCtx(t), &wire.Request{Type: wire.TypeEcho, Target: &target, Message: "alone"})
	require.NoError(t, err)
	assert.Equal(t, "alone", resp.Message, "路由表为空时本地应答")
}

// TestConfig_Validate 测试配置校验
func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.HopLimit = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.Kad.K = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = cfg
	bad.RequestTimeout = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
