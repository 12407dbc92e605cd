package engine

import (
	"context"
	"sync"

	"github.com/dep2p/go-subfield/internal/core/kad"
	"github.com/dep2p/go-subfield/internal/core/portal"
	"github.com/dep2p/go-subfield/internal/protocol/wire"
	"github.com/dep2p/go-subfield/pkg/types"
)

// ============================================================================
//                              请求
// ============================================================================

// Request 从本节点发起路由请求
//
// Hops 为 0 时使用配置的跳数上限。失败响应同时以 *wire.RemoteError 返回。
func (e *Engine) Request(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Clone()
	if req.Hops == 0 {
		req.Hops = e.cfg.HopLimit
	}
	sink, ch := portal.OneShot[*wire.Response]()
	start := e.clk.Now()
	if err := e.submit(ctx, func() { e.route(e.local, 0, req, sink) }); err != nil {
		return nil, err
	}
	resp, err := e.await(ctx, ch)
	e.metrics.Observe(req.Type.String(), e.clk.Since(start))
	return resp, err
}

// RequestPeer 直接向已连接的节点发送请求
func (e *Engine) RequestPeer(ctx context.Context, peer types.V256, req *wire.Request) (*wire.Response, error) {
	req = req.Clone()
	if req.Hops == 0 {
		req.Hops = e.cfg.HopLimit
	}
	sink, ch := portal.OneShot[*wire.Response]()
	if err := e.submit(ctx, func() { e.request(peer, req, sink) }); err != nil {
		return nil, err
	}
	return e.await(ctx, ch)
}

func (e *Engine) await(ctx context.Context, ch <-chan portal.Result[*wire.Response]) (*wire.Response, error) {
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Value, r.Value.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.ctx.Done():
		return nil, ErrClosed
	}
}

// ============================================================================
//                              订阅
// ============================================================================

// Subscription 本地订阅句柄
type Subscription struct {
	e      *Engine
	id     uint64
	key    types.CompleteKey
	stream *portal.Stream[*wire.Response]
	once   sync.Once
}

// Key 订阅的完整键
func (s *Subscription) Key() types.CompleteKey {
	return s.key
}

// C 推送帧，每帧为 GetRecord 成功响应
func (s *Subscription) C() <-chan *wire.Response {
	return s.stream.C()
}

// Done 订阅终止信号
func (s *Subscription) Done() <-chan struct{} {
	return s.stream.Done()
}

// Err 终止原因，正常取消时为 nil
func (s *Subscription) Err() error {
	return s.stream.Err()
}

// Unsubscribe 取消订阅并等待服务端确认
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.stream.CloseWithError(nil)
	var err error
	s.once.Do(func() {
		sink, ch := portal.OneShot[*wire.Response]()
		b := bindingID{s.e.local, s.id}
		if err = s.e.submit(ctx, func() { s.e.unsubscribe(b, sink) }); err != nil {
			return
		}
		_, err = s.e.await(ctx, ch)
	})
	return err
}

// Close 取消订阅，不等待确认
func (s *Subscription) Close() error {
	s.stream.CloseWithError(nil)
	s.once.Do(func() {
		b := bindingID{s.e.local, s.id}
		s.e.post(func() { s.e.unsubscribe(b, discard) })
	})
	return nil
}

// Subscribe 订阅完整键的后续写入
//
// rk 决定订阅请求的路由字段，其部分键必须包含全部三个字段。
func (e *Engine) Subscribe(ctx context.Context, rk types.RoutingKey) (*Subscription, error) {
	key, err := types.CompleteKeyFromPartial(rk.Key)
	if err != nil {
		return nil, err
	}
	req := &wire.Request{Type: wire.TypeSubscribe, Hops: e.cfg.HopLimit, RoutingKey: &rk}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub := &Subscription{
		e:      e,
		id:     e.portals.NextID(),
		key:    key,
		stream: portal.NewStream[*wire.Response](e.cfg.SubscriptionBuffer),
	}
	ack, ch := portal.OneShot[*wire.Response]()

	var (
		mu    sync.Mutex
		acked bool
	)
	sink := func(resp *wire.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !acked {
			acked = true
			ack(resp, err)
			return
		}
		if err == nil && !resp.OK {
			err = resp.Err()
		}
		if err != nil {
			sub.stream.CloseWithError(err)
			sub.Close()
			return
		}
		if perr := sub.stream.Push(resp); perr != nil {
			sub.Close()
		}
	}

	if err := e.submit(ctx, func() { e.route(e.local, sub.id, req, sink) }); err != nil {
		return nil, err
	}
	if _, err := e.await(ctx, ch); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// ============================================================================
//                              路由表查询
// ============================================================================

// Nodes 路由表快照
func (e *Engine) Nodes(ctx context.Context) ([]kad.Node, error) {
	var out []kad.Node
	err := e.do(ctx, func() { out = e.table.Nodes() })
	return out, err
}

// NearestN 本地路由表中距 key 最近的 n 个节点
func (e *Engine) NearestN(ctx context.Context, key types.V256, n int) (kad.NearestNResult, error) {
	var out kad.NearestNResult
	err := e.do(ctx, func() { out = e.table.NearestN(key, n) })
	return out, err
}

// LeastLoadedField 返回本地所在桶节点最少的字段，相同时按扇出顺序
func (e *Engine) LeastLoadedField(ctx context.Context, key types.CompleteKey) (types.RoutingField, error) {
	best := types.FieldSigner
	err := e.do(ctx, func() {
		min := -1
		for _, f := range types.AllFields {
			if n := e.table.BucketLen(key.Field(f)); min < 0 || n < min {
				best, min = f, n
			}
		}
	})
	return best, err
}
